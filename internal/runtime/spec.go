package runtime

import (
	"strings"

	"github.com/minifly/minifly/internal/model"
)

// CreateConfig is the fully-resolved input to Create: a MachineConfig
// plus the region tag that goes into container labels and the data
// directory volumes are bind-mounted under.
type CreateConfig struct {
	Config  model.MachineConfig
	Region  string
	DataDir string
}

// ParseImageRef parses a Docker image string into registry/repository/
// tag/digest components, following the rules of spec §4.5.a step 2.
//
// Only the first three '/'-separated segments are ever consulted (a
// 3+-segment name uses segments 0/1/2 verbatim); anything past that is
// discarded, matching the worked example in spec §8 where
// "ghcr.io/org/app:v1.2@sha256:deadbeef" yields repository "org" with
// the "app" component dropped entirely.
func ParseImageRef(image string) model.ImageRef {
	segments := strings.Split(image, "/")

	var registry, repository, last string
	switch {
	case len(segments) == 1:
		registry = "registry-1.docker.io"
		repository = "library"
		last = segments[0]
	case len(segments) == 2:
		registry = "registry-1.docker.io"
		repository = segments[0]
		last = segments[1]
	default:
		registry = segments[0]
		repository = segments[1]
		last = segments[2]
	}

	tagPart := last
	digest := ""
	if idx := strings.LastIndexByte(last, '@'); idx >= 0 {
		tagPart = last[:idx]
		digest = last[idx+1:]
	}

	tag := "latest"
	if idx := strings.LastIndexByte(tagPart, ':'); idx >= 0 {
		tag = tagPart[idx+1:]
	}

	return model.ImageRef{
		Registry:   registry,
		Repository: repository,
		Tag:        tag,
		Digest:     digest,
	}
}
