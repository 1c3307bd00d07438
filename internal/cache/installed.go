package cache

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// InstallChecker reports whether a flatpak ref is installed on this host
type InstallChecker interface {
	IsInstalled(ctx context.Context, ref string) (bool, error)
}

// FlatpakChecker asks the flatpak CLI
type FlatpakChecker struct {
	binary string
}

// NewFlatpakChecker creates a checker that runs `flatpak info`
func NewFlatpakChecker() *FlatpakChecker {
	return &FlatpakChecker{binary: "flatpak"}
}

// IsInstalled runs `flatpak info <ref>`; a non-zero exit means not installed
func (c *FlatpakChecker) IsInstalled(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}

	err := exec.CommandContext(ctx, c.binary, "info", ref).Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("failed to run flatpak info: %w", err)
}
