package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// CleanupLabel marks containers started by tests.
const CleanupLabel = "prompta-test"

// PostgresDSNEnv names an existing Postgres database for store tests.
const PostgresDSNEnv = "PROMPTA_TEST_POSTGRES_DSN"

// TestingT is the subset of testing.T the Docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

// DockerClient returns a Docker client, skipping the test when no daemon
// answers. Containers labelled for the test are removed on cleanup.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		removed, err := removeLabelled(ctx, cli, CleanupLabel+"="+labelValue(t.Name()))
		for _, name := range removed {
			t.Logf("Cleaned up container: %s", name)
		}
		if err != nil {
			t.Logf("Container cleanup failed: %v", err)
		}
		cli.Close()
	})

	return cli
}

// PostgresDSN returns the database named by PROMPTA_TEST_POSTGRES_DSN,
// skipping the test when it is unset.
func PostgresDSN(t TestingT) string {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	return dsn
}

// UniqueContainerName returns prompta-test-<prefix>-<test>-<random>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	return fmt.Sprintf("prompta-test-%s-%s-%s", prefix, labelValue(t.Name()), randString(4))
}

// ContainerLabels returns the labels DockerClient cleans up by.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: labelValue(t.Name())}
}

// removeLabelled force-removes every container matching label and returns
// the names it removed.
func removeLabelled(ctx context.Context, cli *client.Client, label string) ([]string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", label)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var removed []string
	for _, c := range containers {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("failed to remove container %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func randString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// labelValue reduces a test name to characters valid in container names,
// at most 30 of them.
func labelValue(name string) string {
	v := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '/', r == '_', r == '-':
			return '-'
		}
		return -1
	}, name)
	if len(v) > 30 {
		v = v[:30]
	}
	return v
}
