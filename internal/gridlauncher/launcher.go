// Package gridlauncher is the optional Grid Launcher (SPEC_FULL.md §4.9):
// when the service is configured to manage its own grid, it boots N
// selenium/standalone-chrome containers via the Docker Engine API, one port
// each, and hands back the resulting grid_url candidates. It is an
// adaptation of the teacher's internal/browser container lifecycle, applied
// to grid nodes rather than one container per browser session. Once the
// pool holds a Grid handle it never consults this package again.
package gridlauncher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

const nodeImage = "selenium/standalone-chrome:latest"

// Node is one launched Selenium Grid node container.
type Node struct {
	ContainerID string
	URL         string // e.g. http://localhost:32768/wd/hub
}

// Launcher boots and tears down Docker-backed Selenium Grid nodes.
type Launcher struct {
	client *client.Client
	log    logrus.FieldLogger
}

// New builds a Launcher using Docker configuration from the environment.
func New(log logrus.FieldLogger) (*Launcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Launcher{client: cli, log: log}, nil
}

// Launch starts n standalone-chrome node containers, each bound to a random
// host port, and waits for each one's /wd/hub/status to report ready.
func (l *Launcher) Launch(ctx context.Context, n int) ([]Node, error) {
	if err := l.ensureImage(ctx); err != nil {
		return nil, fmt.Errorf("ensure grid node image: %w", err)
	}

	nodes := make([]Node, 0, n)
	for i := 0; i < n; i++ {
		node, err := l.launchOne(ctx, i)
		if err != nil {
			l.log.WithError(err).WithField("node_index", i).Warn("grid launcher: failed to start node, stopping partial set")
			l.StopAll(context.Background(), nodes)
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (l *Launcher) launchOne(ctx context.Context, index int) (Node, error) {
	containerConfig := &container.Config{
		Image: nodeImage,
		Labels: map[string]string{
			"managed-by": "sidesvc-gridlauncher",
		},
		ExposedPorts: nat.PortSet{
			"4444/tcp": struct{}{},
		},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"4444/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}},
		},
		AutoRemove: false,
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, fmt.Sprintf("sidesvc-grid-node-%d", index))
	if err != nil {
		return Node{}, fmt.Errorf("create grid node container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Node{}, fmt.Errorf("start grid node container: %w", err)
	}

	inspect, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return Node{}, fmt.Errorf("inspect grid node container: %w", err)
	}
	port := inspect.NetworkSettings.Ports["4444/tcp"][0].HostPort
	url := fmt.Sprintf("http://localhost:%s/wd/hub", port)

	if err := waitForNodeReady(url); err != nil {
		return Node{}, fmt.Errorf("grid node failed to become ready: %w", err)
	}

	return Node{ContainerID: resp.ID, URL: url}, nil
}

// StopAll stops and removes every node, best-effort: failures are logged,
// never raised, per SPEC_FULL.md §4.9.
func (l *Launcher) StopAll(ctx context.Context, nodes []Node) {
	for _, n := range nodes {
		timeout := 10
		if err := l.client.ContainerStop(ctx, n.ContainerID, container.StopOptions{Timeout: &timeout}); err != nil {
			l.log.WithError(err).WithField("container_id", n.ContainerID).Warn("grid launcher: failed to stop node")
			continue
		}
		if err := l.client.ContainerRemove(ctx, n.ContainerID, container.RemoveOptions{}); err != nil {
			l.log.WithError(err).WithField("container_id", n.ContainerID).Warn("grid launcher: failed to remove node")
		}
	}
}

func (l *Launcher) ensureImage(ctx context.Context) error {
	images, err := l.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == nodeImage {
				return nil
			}
		}
	}

	reader, err := l.client.ImagePull(ctx, nodeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull grid node image: %w", err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func waitForNodeReady(url string) error {
	const maxRetries = 20
	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(url + "/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grid node at %s did not become ready", url)
}

// Close releases the underlying Docker client.
func (l *Launcher) Close() error {
	return l.client.Close()
}
