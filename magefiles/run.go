//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine with revolution.toml.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the test suite with the race detector. goki/vulkan needs cgo.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Renders a few headless frames and writes the previews to out/.
func (Run) Preview() error {
	if err := os.MkdirAll("out", 0o755); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("run", "..", "-config", "../revolution.toml", "-backend", "headless", "-preview", "."), withDir("out"), withStream())
	return err
}
