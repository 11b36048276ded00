package podman

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.alt-gnome.ru/capyscript"
	"go.alt-gnome.ru/capyscript/providers/local"
)

var DefaultPodmanCli string = "podman"
var DefaultImage string = "ubuntu:latest"

type PodmanOption func(*podmanProvider)

func WithImage(image string) PodmanOption {
	return func(p *podmanProvider) {
		p.image = image
	}
}

func WithWorkdir(workdir string) PodmanOption {
	return func(p *podmanProvider) {
		p.workdir = workdir
	}
}

func WithVolumes(volumes ...string) PodmanOption {
	return func(p *podmanProvider) {
		p.volumes = append(p.volumes, volumes...)
	}
}

func WithEnvVars(envVars ...string) PodmanOption {
	return func(p *podmanProvider) {
		p.envVars = append(p.envVars, envVars...)
	}
}

func WithNetwork(network string) PodmanOption {
	return func(p *podmanProvider) {
		p.network = network
	}
}

func WithPrivileged(privileged bool) PodmanOption {
	return func(p *podmanProvider) {
		p.privileged = privileged
	}
}

type podmanProvider struct {
	image       string
	workdir     string
	volumes     []string
	envVars     []string
	network     string
	privileged  bool
	containerID string
	prepared    bool
}

func Provider(opts ...PodmanOption) *podmanProvider {
	p := &podmanProvider{
		image: DefaultImage,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare pulls the image if needed and starts a long-lived container
// every script of the suite execs into.
func (p *podmanProvider) Prepare() error {
	if p.prepared {
		return nil
	}

	exists, err := p.ImageExists()
	if err != nil {
		return err
	}
	if !exists {
		if err := p.PullImage(); err != nil {
			return err
		}
	}

	containerID, err := p.createContainer()
	if err != nil {
		return err
	}
	p.containerID = containerID

	if err := p.startContainer(); err != nil {
		return err
	}

	p.prepared = true
	return nil
}

func (p *podmanProvider) Cleanup() error {
	if !p.prepared || p.containerID == "" {
		return nil
	}

	stopCmd := exec.Command(DefaultPodmanCli, "stop", p.containerID)
	stopCmd.Run()

	rmCmd := exec.Command(DefaultPodmanCli, "rm", p.containerID)
	if err := rmCmd.Run(); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", p.containerID, err)
	}

	p.containerID = ""
	p.prepared = false
	return nil
}

func (p *podmanProvider) PullImage() error {
	cmd := exec.Command(DefaultPodmanCli, "pull", p.image)
	return cmd.Run()
}

func (p *podmanProvider) ImageExists() (bool, error) {
	cmd := exec.Command(DefaultPodmanCli, "image", "exists", p.image)
	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateArgs returns the podman arguments used to create the container.
func (p *podmanProvider) CreateArgs() []string {
	args := []string{"create", "--init"}

	if p.workdir != "" {
		args = append(args, "--workdir", p.workdir)
	}
	for _, volume := range p.volumes {
		args = append(args, "-v", volume)
	}
	for _, env := range p.envVars {
		args = append(args, "-e", env)
	}
	if p.network != "" {
		args = append(args, "--network", p.network)
	}
	if p.privileged {
		args = append(args, "--privileged")
	}

	// Контейнер живёт, пока его не остановит Cleanup
	return append(args, p.image, "sleep", "infinity")
}

func (p *podmanProvider) createContainer() (string, error) {
	cmd := exec.Command(DefaultPodmanCli, p.CreateArgs()...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return strings.TrimSuffix(string(output), "\n"), nil
}

func (p *podmanProvider) startContainer() error {
	cmd := exec.Command(DefaultPodmanCli, "start", p.containerID)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to start container %s: %w", p.containerID, err)
	}

	for i := 0; i < 10; i++ {
		if running, err := p.isContainerRunning(); err != nil {
			return err
		} else if running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("container %s failed to start within timeout", p.containerID)
}

func (p *podmanProvider) isContainerRunning() (bool, error) {
	cmd := exec.Command(DefaultPodmanCli, "container", "inspect", p.containerID, "--format", "{{.State.Running}}")
	output, err := cmd.Output()
	if err != nil {
		return false, err
	}
	return string(output) == "true\n", nil
}

// ExecArgs returns the podman arguments that run cmd inside the container.
func (p *podmanProvider) ExecArgs(cmd capyscript.Command) []string {
	args := []string{"exec", "-i"}
	if cmd.Dir != "" {
		args = append(args, "--workdir", cmd.Dir)
	}
	for _, env := range cmd.Env {
		args = append(args, "--env", env)
	}
	args = append(args, p.containerID)
	return append(args, cmd.Argv()...)
}

func (p *podmanProvider) StartCommand(_ context.Context, cmd capyscript.Command) (capyscript.InteractiveSession, error) {
	if !p.prepared {
		if err := p.Prepare(); err != nil {
			return nil, fmt.Errorf("failed to prepare container: %w", err)
		}
	}

	c := exec.Command(DefaultPodmanCli, p.ExecArgs(cmd)...)
	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, err
	}

	sess := &session{
		cmd:     c,
		stdin:   stdin,
		stdoutC: make(chan string),
		stderrC: make(chan string),
	}

	if err := c.Start(); err != nil {
		return nil, err
	}

	go local.ReadPipe(stdout, sess.stdoutC)
	go local.ReadPipe(stderr, sess.stderrC)

	return sess, nil
}

type session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	stdoutC chan string
	stderrC chan string

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func (s *session) Write(input string) error {
	_, err := io.WriteString(s.stdin, input)
	return err
}

func (s *session) Stdout() <-chan string {
	return s.stdoutC
}

func (s *session) Stderr() <-chan string {
	return s.stderrC
}

func (s *session) Wait() (int, error) {
	s.waitOnce.Do(func() {
		s.exitCode, s.waitErr = exitCode(s.cmd.Wait())
	})
	return s.exitCode, s.waitErr
}

func (s *session) Interrupt() error {
	return local.Signal(s.cmd.Process, syscall.SIGINT)
}

func (s *session) Kill() error {
	return local.Signal(s.cmd.Process, syscall.SIGTERM)
}

// ForceKill only ends the podman client; the container keeps running until
// Cleanup removes it.
func (s *session) ForceKill() error {
	return local.Signal(s.cmd.Process, syscall.SIGKILL)
}

// exitCode maps the podman-specific exec failures to errors and passes
// every other status through.
func exitCode(waitErr error) (int, error) {
	code, err := local.ExitStatus(waitErr)
	if err != nil {
		return code, err
	}
	switch code {
	case 125:
		return -1, fmt.Errorf("podman exec internal error: %w", waitErr)
	case 126:
		return -1, fmt.Errorf("cannot invoke command in container: %w", waitErr)
	case 127:
		return -1, fmt.Errorf("command not found in container: %w", waitErr)
	default:
		return code, nil
	}
}
