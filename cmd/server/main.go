package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LordWolfenstein/databass"
	"github.com/LordWolfenstein/databass/config"
	log "github.com/sirupsen/logrus"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a JSON config file")
	port := flag.Int("port", 7878, "TCP port to listen on")
	streamPort := flag.Int("streamPort", 0, "HTTP port for the WebSocket feed stream (disabled if 0)")
	dialectName := flag.String("dialect", "", "Store dialect: sqlite, mysql, mariadb or duckdb")
	dsn := flag.String("dsn", "", "Store DSN (overrides the config file)")
	journalDir := flag.String("journalDir", "", "Journal directory (enables the journal)")
	gitUrl := flag.String("gitUrl", "", "Git URL to clone the journal from")
	tlsCert := flag.String("tlsCert", "", "TLS certificate file")
	tlsKey := flag.String("tlsKey", "", "TLS key file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("DataBass Feed Server v%s\n", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dialectName != "" {
		cfg.Store.Dialect = *dialectName
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}
	if *journalDir != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Dir = *journalDir
	}
	if *gitUrl != "" {
		cfg.Journal.GitURL = *gitUrl
	}

	instance, err := databass.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer instance.Close()

	server := NewServerWithAuth(instance, cfg.Auth)

	addr := fmt.Sprintf(":%d", *port)
	if *tlsCert != "" || *tlsKey != "" {
		err = server.StartTLS(addr, *tlsCert, *tlsKey)
	} else {
		err = server.Start(addr)
	}
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	if *streamPort != 0 {
		if err := server.StartFeedStream(fmt.Sprintf(":%d", *streamPort)); err != nil {
			log.Fatalf("Failed to start feed stream: %v", err)
		}
	}

	// Print banner
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Printf("║   DataBass Feed Server v%-13s  ║\n", Version)
	fmt.Println("║   Schema-aware operation feeds        ║")
	fmt.Println("╚═══════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Listening on port %d (%s store)\n", *port, instance.Dialect.Name())
	fmt.Println(`Send one JSON request per line, e.g. {"feed": "..."}, 'quit' to disconnect`)
	fmt.Println()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	server.Stop()
	log.Info("Server stopped")
}
