//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const (
	shaderSrcDir = "shaders"
	shaderOutDir = "assets/shaders"
)

var shaderSources = []string{
	"fullScreen.vert",
	"sky.frag",
	"tonemap.frag",
	"zPrePass.vert",
	"zPrePass.frag",
}

type Build mg.Namespace

// Compiles the GLSL sources in shaders/ to SPIR-V under assets/shaders.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the revolution binary.
func (Build) Engine() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/revolution", "."), withStream())
	return err
}

func buildShaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	for _, src := range shaderSources {
		out := filepath.Join(shaderOutDir, src+".spv")
		if _, err := executeCmd("glslc", withArgs(filepath.Join(shaderSrcDir, src), "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
