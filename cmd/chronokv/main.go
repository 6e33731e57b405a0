package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/chronokv/chronokv/internal/config"
	"github.com/chronokv/chronokv/internal/engine"
	"github.com/chronokv/chronokv/internal/logger"
	"github.com/chronokv/chronokv/internal/store"
)

// Version is set at build time
var Version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: chronokv SERIES VERB [ARGS...]\n")
	fmt.Fprintf(os.Stderr, "       chronokv copy SRC DEST [ARGS...]\n")
	os.Exit(2)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Debug().Str("version", Version).Str("backend", cfg.Store.Backend).Msg("starting chronokv")

	if len(os.Args) < 3 {
		usage()
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	eng := engine.New(st, engine.WithLogger(logger.Get("engine")))

	// The dispatch surface is (series, verb, args...); copy takes the
	// destination key as its first argument.
	var key, verb string
	var args []string
	if os.Args[1] == "copy" {
		if len(os.Args) < 4 {
			usage()
		}
		verb, key = "copy", os.Args[2]
		args = append([]string{os.Args[3]}, os.Args[4:]...)
	} else {
		key, verb = os.Args[1], os.Args[2]
		args = os.Args[3:]
	}

	reply, err := eng.Exec(verb, key, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch r := reply.(type) {
	case []byte:
		os.Stdout.Write(r)
	default:
		out, err := json.Marshal(r)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to render reply")
		}
		fmt.Println(string(out))
	}
}
