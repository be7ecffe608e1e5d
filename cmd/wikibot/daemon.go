package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// daemonEnv marks the intermediate process of the double fork
const daemonEnv = "WIKIBOT_DAEMON"

const pidFile = "pid.txt"

// daemonize starts the bot detached from the terminal. The first child
// leads a new session and starts the real bot with -x, so the bot itself is
// never a session leader and never reacquires a terminal.
func daemonize() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	intermediate := os.Getenv(daemonEnv) == "1"
	args := os.Args[1:]
	cmd := exec.Command(self, args...)
	if intermediate {
		cmd.Args = append(cmd.Args, "-x")
		cmd.Env = withoutEnv(os.Environ(), daemonEnv)
	} else {
		cmd.Env = append(os.Environ(), daemonEnv+"=1")
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to fork: %w", err)
	}
	if !intermediate {
		fmt.Printf("Now becoming a daemon, the bot's pid will be written to %s\n", pidFile)
	}
	return cmd.Process.Release()
}

func withoutEnv(env []string, key string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, key+"=") {
			out = append(out, kv)
		}
	}
	return out
}

// writePIDFile records the running bot's pid in dataDir and returns the
// path written.
func writePIDFile(dataDir string) (string, error) {
	path := filepath.Join(dataDir, pidFile)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", err
	}
	return path, nil
}
