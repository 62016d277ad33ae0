package main

import (
	"log"

	"storefront/internal/config"
	"storefront/internal/devserver"
)

func main() {
	cfg, err := config.LoadDevServer()
	if err != nil {
		log.Fatal(err)
	}

	srv := devserver.New(cfg)
	defer srv.Hub().Close()

	log.Printf("devserver listening on %s", cfg.Addr)
	if err := srv.Router().Run(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
