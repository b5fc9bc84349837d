package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"osmsync/cmd"
	"osmsync/config"
	"osmsync/services"
	"osmsync/types"
)

func main() {
	config.Load()

	var (
		preset    string
		customURL string
		server    bool
		port      int
	)

	flag.StringVar(&preset, "preset", "", "Preset id of the extract to sync (see -server API /api/osm/presets)")
	flag.StringVar(&customURL, "url", "", "Custom extract URL to sync")
	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 8080, "Port for web server mode")
	flag.Parse()

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(port)
		return
	}

	if preset == "" && customURL == "" {
		flag.Usage()
		return
	}
	if preset != "" && customURL != "" {
		log.Fatalf("Use only one of -preset and -url at a time.")
	}

	var p types.Preset
	if preset != "" {
		found, ok := services.LookupPreset(preset)
		if !ok {
			log.Fatalf("Unknown preset %q", preset)
		}
		p = found
	} else {
		p = services.CustomPreset(customURL)
	}

	if err := runForegroundSync(p); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
}

// runForegroundSync runs one sync in the terminal, rendering job
// progress as a bar until the job reaches a terminal state. Ctrl-C
// cancels the job instead of orphaning the external tools.
func runForegroundSync(p types.Preset) error {
	registry := services.NewJobRegistry(services.NewMemoryStore(), nil)
	orchestrator := services.NewOrchestrator(registry, services.NewDownloader(), services.DefaultOrchestratorConfig())

	job, err := orchestrator.StartSync(p)
	if err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Syncing "+p.Name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
	)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			log.Println("Cancelling sync...")
			registry.Cancel(job.ID)

		case <-ticker.C:
			view, ok := registry.Get(job.ID)
			if !ok {
				continue
			}
			bar.Describe(view.Message)
			_ = bar.Set(view.Progress)

			if view.Status.IsTerminal() {
				bar.Finish()
				log.Printf("Job %s: %s", view.ID, view.Status)
				if view.Status == types.JobStatusFailed {
					log.Fatalf("Sync failed: %s", view.Error)
				}
				return nil
			}
		}
	}
}
