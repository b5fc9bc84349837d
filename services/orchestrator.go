package services

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"osmsync/config"
	"osmsync/types"
)

// OrchestratorConfig carries the paths and external commands the sync
// pipeline drives. The extract path is appended to ImportArgs at run
// time; TileGenArgs is extended with --input/--output flags.
type OrchestratorConfig struct {
	DownloadsDir       string
	CurrentExtractPath string
	TilePackagePath    string
	ImportCommand      string
	ImportArgs         []string
	TileGenCommand     string
	TileGenArgs        []string
	RestartCommand     string
}

// DefaultOrchestratorConfig builds the production configuration from the
// environment.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DownloadsDir:       config.GetDownloadsDir(),
		CurrentExtractPath: config.GetCurrentExtractPath(),
		TilePackagePath:    config.GetTilePackagePath(),
		ImportCommand:      config.GetImportCommand(),
		ImportArgs:         []string{"--create", "--slim", "--hstore", "--database", "gis"},
		TileGenCommand:     config.GetTileGenCommand(),
		RestartCommand:     config.GetTileServerRestartCommand(),
	}
}

// Orchestrator drives one job at a time through the stage sequence
// download -> import -> tile generation -> completion. It is the only
// writer of job state after creation; polling handlers only read.
type Orchestrator struct {
	registry   JobRegistry
	downloader *Downloader
	cfg        OrchestratorConfig
}

// NewOrchestrator creates an orchestrator over the given registry.
func NewOrchestrator(registry JobRegistry, downloader *Downloader, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		downloader: downloader,
		cfg:        cfg,
	}
}

// StartSync registers a job for the preset and launches the stage
// sequence in the background. The returned view is a snapshot taken
// before the pipeline goroutine starts mutating the job; a
// *ConflictError means another sync is still running.
func (o *Orchestrator) StartSync(preset types.Preset) (types.JobView, error) {
	job, err := o.registry.Create(preset.Name, preset.SourceURL)
	if err != nil {
		return types.JobView{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.registry.SetCancelFunc(job.ID, cancel)

	snapshot, _ := o.registry.Get(job.ID)
	go o.runSync(ctx, job.ID, preset.SourceURL)
	return snapshot, nil
}

// runSync executes the stage sequence and guarantees the job reaches a
// terminal state no matter what goes wrong. Fail is a no-op on jobs that
// were cancelled while a stage was in flight.
func (o *Orchestrator) runSync(ctx context.Context, jobID, downloadURL string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Sync job %s panicked: %v", jobID, r)
			o.registry.Fail(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := o.execute(ctx, jobID, downloadURL); err != nil {
		log.Printf("Sync job %s failed: %v", jobID, err)
		o.registry.Fail(jobID, err.Error())
		return
	}
	log.Printf("Sync job %s completed", jobID)
}

func (o *Orchestrator) execute(ctx context.Context, jobID, downloadURL string) error {
	// Stage 1: transfer, progress 0-30 from observed bytes.
	o.registry.SetStatus(jobID, types.JobStatusDownloading, "Downloading extract")
	dest := filepath.Join(o.cfg.DownloadsDir, FileNameForURL(downloadURL))

	err := o.downloader.Fetch(ctx, downloadURL, dest, func(received, total int64) {
		if total > 0 {
			p := int(30 * received / total)
			if p > 30 {
				p = 30
			}
			o.registry.SetProgress(jobID, p)
		}
	})
	if err != nil {
		return err
	}
	o.registry.SetProgress(jobID, 30)
	o.registry.AppendLog(jobID, "Download complete: "+dest)

	if err := ExposeCurrentExtract(dest, o.cfg.CurrentExtractPath); err != nil {
		// Not fatal: the pipeline keeps using the downloaded file directly.
		log.Printf("Warning: could not update current extract alias: %v", err)
		o.registry.AppendLog(jobID, "Warning: could not update current extract alias")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 2: import, progress 30-70. The import tool does not emit
	// machine-parseable percentages, so each output line advances
	// progress by a small bounded increment. Approximate on purpose.
	o.registry.SetStatus(jobID, types.JobStatusImporting, "Importing extract into spatial database")
	o.registry.SetProgress(jobID, 30)
	importArgs := append(append([]string{}, o.cfg.ImportArgs...), dest)
	if err := o.runStageCommand(ctx, jobID, o.cfg.ImportCommand, importArgs, 30, 69); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 3: tile generation, progress 70-95, same heuristic.
	o.registry.SetStatus(jobID, types.JobStatusGeneratingTiles, "Generating tile package")
	o.registry.SetProgress(jobID, 70)
	tileArgs := append(append([]string{}, o.cfg.TileGenArgs...), "--input", dest, "--output", o.cfg.TilePackagePath)
	if err := o.runStageCommand(ctx, jobID, o.cfg.TileGenCommand, tileArgs, 70, 94); err != nil {
		return err
	}

	// Stage 4: completion. The tile server restart is best-effort; the
	// sync succeeded even if the live server did not pick it up.
	o.registry.SetProgress(jobID, 95)
	o.registry.Complete(jobID, "Sync completed successfully")
	o.restartTileServer()
	return nil
}

// runStageCommand runs one external tool, tracking its process handle on
// the job for cancellation and nudging progress within [base, ceil] for
// every output line.
func (o *Orchestrator) runStageCommand(ctx context.Context, jobID, name string, args []string, base, ceil int) error {
	var mu sync.Mutex
	progress := base

	err := RunCommand(ctx, name, args,
		func(cmd *exec.Cmd) {
			o.registry.SetProcess(jobID, cmd)
		},
		func(line string) {
			o.registry.AppendLog(jobID, line)
			mu.Lock()
			if progress < ceil {
				progress += 1 + rand.Intn(3)
				if progress > ceil {
					progress = ceil
				}
			}
			p := progress
			mu.Unlock()
			o.registry.SetProgress(jobID, p)
		})

	o.registry.SetProcess(jobID, nil)
	return err
}

// restartTileServer runs the configured restart command so the serving
// process picks up the new tile package. Failures are logged only.
func (o *Orchestrator) restartTileServer() {
	if o.cfg.RestartCommand == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := RunCommand(ctx, "sh", []string{"-c", o.cfg.RestartCommand}, nil, nil); err != nil {
		log.Printf("Warning: tile server restart failed: %v", err)
	}
}
