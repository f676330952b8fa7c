// Package pgdocker runs a local Postgres container for prompta's
// postgres driver.
package pgdocker

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DefaultImage         = "postgres:16-alpine"
	DefaultContainerName = "prompta-postgres"
	ContainerNamePrefix  = "prompta-postgres-"
	DefaultPort          = "5433"
	ContainerPort        = "5432/tcp"
	DataDir              = "/var/lib/postgresql/data"
	Label                = "prompta-postgres"

	startupTimeout    = 30 * time.Second
	readyPollInterval = time.Second
	stopGraceSeconds  = 10
)

// ContainerStatus is the coarse container state shown by `prompta db status`.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not_found"
	StatusStarting ContainerStatus = "starting"
)

// DockerManager owns one named Postgres container.
type DockerManager struct {
	cli           *client.Client
	containerName string
	imageName     string
	dataPath      string // bind-mounted at DataDir when set
	hostPort      string
	user          string
	password      string
	database      string
	labels        map[string]string
}

// DockerConfig configures a DockerManager. Zero fields take the package
// defaults and prompta/prompta/prompta credentials.
type DockerConfig struct {
	ContainerName string
	// HomePath derives a per-home container name when ContainerName is empty,
	// so two prompta homes on one machine never share a database.
	HomePath string
	Image    string
	DataPath string
	HostPort string
	User     string
	Password string
	Database string
	Labels   map[string]string
}

// GenerateContainerName returns a stable container name for a home path.
func GenerateContainerName(homePath string) string {
	sum := sha256.Sum256([]byte(homePath))
	return ContainerNamePrefix + hex.EncodeToString(sum[:])[:8]
}

// NewDockerManager connects to the Docker daemon from the environment. It
// does not touch the container.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	if cfg.ContainerName == "" {
		if cfg.HomePath != "" {
			cfg.ContainerName = GenerateContainerName(cfg.HomePath)
		} else {
			cfg.ContainerName = DefaultContainerName
		}
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}
	if cfg.User == "" {
		cfg.User = "prompta"
	}
	if cfg.Password == "" {
		cfg.Password = "prompta"
	}
	if cfg.Database == "" {
		cfg.Database = "prompta"
	}

	labels := maps.Clone(cfg.Labels)
	if labels == nil {
		labels = make(map[string]string, 1)
	}
	labels[Label] = "true"

	return &DockerManager{
		cli:           cli,
		containerName: cfg.ContainerName,
		imageName:     cfg.Image,
		dataPath:      cfg.DataPath,
		hostPort:      cfg.HostPort,
		user:          cfg.User,
		password:      cfg.Password,
		database:      cfg.Database,
		labels:        labels,
	}, nil
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// ContainerName returns the name of the managed container.
func (m *DockerManager) ContainerName() string {
	return m.containerName
}

// DSN returns the connection string for the managed database.
func (m *DockerManager) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable",
		m.user, m.password, m.hostPort, m.database)
}

// Start brings the container up, creating it on first use, and waits until
// Postgres accepts connections. A running container is left alone.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	ref, err := m.lookup(ctx)
	if err != nil {
		return err
	}
	switch ref.status {
	case StatusRunning:
		return nil
	case StatusStarting:
	case StatusNotFound:
		if err := m.create(ctx); err != nil {
			return err
		}
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, ref.id, container.StartOptions{}); err != nil {
			return fmt.Errorf("start %s: %w", m.containerName, err)
		}
	default:
		return fmt.Errorf("container %s is %s", m.containerName, ref.status)
	}
	return m.waitForReady(ctx, startupTimeout)
}

// Stop stops the container if it exists.
func (m *DockerManager) Stop(ctx context.Context) error {
	ref, err := m.lookup(ctx)
	if err != nil || ref.status == StatusNotFound {
		return err
	}
	grace := stopGraceSeconds
	if err := m.cli.ContainerStop(ctx, ref.id, container.StopOptions{Timeout: &grace}); err != nil {
		return fmt.Errorf("stop %s: %w", m.containerName, err)
	}
	return nil
}

// Remove deletes the container. The bind-mounted data directory survives, so
// a later Start reuses the same database.
func (m *DockerManager) Remove(ctx context.Context) error {
	ref, err := m.lookup(ctx)
	if err != nil || ref.status == StatusNotFound {
		return err
	}
	if ref.status == StatusRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}
	opts := container.RemoveOptions{Force: true, RemoveVolumes: true}
	if err := m.cli.ContainerRemove(ctx, ref.id, opts); err != nil {
		return fmt.Errorf("remove %s: %w", m.containerName, err)
	}
	return nil
}

// Status reports the container state.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	ref, err := m.lookup(ctx)
	if err != nil {
		return "", err
	}
	return ref.status, nil
}

// Logs returns the last tail lines of container output ("all" for
// everything).
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	ref, err := m.lookup(ctx)
	if err != nil {
		return "", err
	}
	if ref.status == StatusNotFound {
		return "", fmt.Errorf("container %s does not exist", m.containerName)
	}
	rc, err := m.cli.ContainerLogs(ctx, ref.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("logs for %s: %w", m.containerName, err)
	}
	defer rc.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, rc); err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}
	return sb.String(), nil
}

// ValidateExisting refuses a container of the same name that publishes a
// different host port or mounts a different data directory. A missing
// container is valid.
func (m *DockerManager) ValidateExisting(ctx context.Context) error {
	ref, err := m.lookup(ctx)
	if err != nil || ref.status == StatusNotFound {
		return err
	}
	info, err := m.cli.ContainerInspect(ctx, ref.id)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", m.containerName, err)
	}

	var published string
	if b := info.HostConfig.PortBindings[ContainerPort]; len(b) > 0 {
		published = b[0].HostPort
	}
	if published != m.hostPort {
		return fmt.Errorf("container %s publishes port %q, config wants %q", m.containerName, published, m.hostPort)
	}

	if m.dataPath == "" {
		return nil
	}
	for _, mnt := range info.Mounts {
		if mnt.Destination != DataDir {
			continue
		}
		if mnt.Source != m.dataPath {
			return fmt.Errorf("container %s stores data in %s, config wants %s", m.containerName, mnt.Source, m.dataPath)
		}
		return nil
	}
	return fmt.Errorf("container %s has no data mount at %s", m.containerName, DataDir)
}

// WaitReady blocks until Postgres answers a ping or timeout elapses.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	return m.waitForReady(ctx, timeout)
}

func (m *DockerManager) create(ctx context.Context) error {
	if err := m.pullIfMissing(ctx); err != nil {
		return err
	}
	cfg, hostCfg := m.containerSpec()
	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("create %s: %w", m.containerName, err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("start %s: %w", m.containerName, err)
	}
	return nil
}

// containerSpec describes the postgres container: credentials through the
// image's POSTGRES_* variables, the port published on loopback only, and a
// pg_isready healthcheck.
func (m *DockerManager) containerSpec() (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image: m.imageName,
		Env: []string{
			"POSTGRES_USER=" + m.user,
			"POSTGRES_PASSWORD=" + m.password,
			"POSTGRES_DB=" + m.database,
		},
		Labels:       m.labels,
		ExposedPorts: nat.PortSet{ContainerPort: struct{}{}},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD", "pg_isready", "-U", m.user, "-d", m.database},
			Interval:    2 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     10,
			StartPeriod: 5 * time.Second,
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: {{HostIP: "127.0.0.1", HostPort: m.hostPort}},
		},
	}
	if m.dataPath != "" {
		hostCfg.Mounts = []mount.Mount{{Type: mount.TypeBind, Source: m.dataPath, Target: DataDir}}
	}
	return cfg, hostCfg
}

type containerRef struct {
	id     string
	status ContainerStatus
}

func (m *DockerManager) lookup(ctx context.Context) (containerRef, error) {
	list, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+m.containerName+"$")),
	})
	if err != nil {
		return containerRef{}, fmt.Errorf("list containers: %w", err)
	}
	if len(list) == 0 {
		return containerRef{status: StatusNotFound}, nil
	}
	return containerRef{id: list[0].ID, status: statusOf(string(list[0].State))}, nil
}

func statusOf(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "dead":
		return StatusStopped
	case "created", "restarting":
		return StatusStarting
	}
	return ContainerStatus(state)
}

func (m *DockerManager) waitForReady(ctx context.Context, timeout time.Duration) error {
	attempts := uint(timeout / readyPollInterval)
	if attempts == 0 {
		attempts = 1
	}
	db, err := sql.Open("pgx", m.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	return retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return db.PingContext(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(readyPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (m *DockerManager) pullIfMissing(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.imageName); err == nil {
		return nil
	}
	rc, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", m.imageName, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}
