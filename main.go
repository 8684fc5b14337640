/*
Sample driver for the render graph: loads revolution.toml, renders the
configured number of frames and writes previews when asked to.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/revolution/engine"
	"github.com/spaghettifunk/revolution/engine/config"
	"github.com/spaghettifunk/revolution/engine/core"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML config")
	backend := flag.String("backend", "", "override the configured backend (headless or vulkan)")
	preview := flag.String("preview", "", "directory receiving output.png and depth.png")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *preview != "" {
		cfg.Debug.PreviewDir = *preview
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal("%s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the frame loop on sigterm and friends, Shutdown runs below
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
