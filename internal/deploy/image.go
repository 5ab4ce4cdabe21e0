package deploy

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

const defaultImage = "alpine:latest"

// ResolveImage picks the image to deploy (spec §4.7 step 3): an
// explicit build.image wins outright; else a Dockerfile (named by
// build.dockerfile or the top-level default) is built locally tagged
// "{app}-local:latest"; else the default alpine image is used.
// Grounded on original_source/minifly-cli/src/commands/
// deploy.rs::build_or_get_image / build_with_fly_compatibility (not
// kept verbatim — reimplemented over os/exec since this system shells
// out to the docker CLI for builds rather than the Docker API, the way
// the original does).
func ResolveImage(dir string, cfg FlyToml) (string, error) {
	if cfg.Build != nil && cfg.Build.Image != "" {
		klog.Infof("using image %s", cfg.Build.Image)
		return cfg.Build.Image, nil
	}

	dockerfile := "Dockerfile"
	if cfg.Build != nil && cfg.Build.Dockerfile != "" {
		dockerfile = cfg.Build.Dockerfile
	}
	dockerfilePath := filepath.Join(dir, dockerfile)

	if _, err := os.Stat(dockerfilePath); err != nil {
		klog.Warningf("no Dockerfile found at %s, using default image %s", dockerfilePath, defaultImage)
		return defaultImage, nil
	}

	return buildImage(dir, dockerfilePath, cfg.App)
}

func buildImage(dir, dockerfilePath, appName string) (string, error) {
	content, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return "", fmt.Errorf("read dockerfile: %w", err)
	}
	if strings.Contains(string(content), "FROM flyio/") {
		klog.Warning("Dockerfile uses a flyio/ base image; using it as-is, no local equivalent is substituted")
	}

	imageName := appName + "-local:latest"
	args := []string{
		"build", "-t", imageName, "-f", dockerfilePath,
		"--build-arg", "FLY_APP_NAME=" + appName,
		"--build-arg", "FLY_REGION=local",
		"--build-arg", "FLY_BUILD_ID=local-build",
		dir,
	}

	cmd := exec.Command("docker", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker build: %w", err)
	}

	klog.Infof("built image %s", imageName)
	return imageName, nil
}
