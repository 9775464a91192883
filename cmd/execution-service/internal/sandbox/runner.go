// Package sandbox runs submitted code inside the pre-provisioned
// per-language containers under a hard wall-clock timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/secp/services/codecollab/internal/rooms"
)

// containerMount is where every language container mounts the host staging
// directory.
const containerMount = "/app"

// Config controls where jobs are staged and how they are executed.
type Config struct {
	// HostDir is the host directory the language containers mount at /app.
	HostDir string

	// DockerBinary is the docker client binary. Overridable for tests.
	DockerBinary string

	// Timeout is the hard wall-clock bound per run.
	Timeout time.Duration
}

// Runner stages a submission in a job-scoped directory and executes it with
// `docker exec` against the language's container. Every job gets its own
// directory keyed by a fresh job id; nothing is ever shared between
// concurrent runs, and the directory is removed on every exit path.
type Runner struct {
	hostDir   string
	dockerBin string
	timeout   time.Duration
}

// NewRunner creates a Runner, filling in defaults for unset fields.
func NewRunner(cfg Config) *Runner {
	hostDir := strings.TrimSpace(cfg.HostDir)
	if hostDir == "" {
		hostDir = "/tmp/code"
	}
	dockerBin := strings.TrimSpace(cfg.DockerBinary)
	if dockerBin == "" {
		dockerBin = "docker"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{hostDir: hostDir, dockerBin: dockerBin, timeout: timeout}
}

// Run executes code in the container for language, feeding it input on
// stdin, and returns combined stdout and stderr. Compile and runtime
// failures are reported through the returned output text; the error return
// is reserved for unsupported languages and staging problems.
func (r *Runner) Run(ctx context.Context, language, code, input string) (string, error) {
	lang, err := rooms.ParseLanguage(language)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()[:8]
	jobDir := filepath.Join(r.hostDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			log.Printf("[sandbox] failed to clean job %s: %v", jobID, err)
		}
	}()

	codeFile := codeFilename(lang, jobID)
	inputFile := jobID + "-input.txt"
	if err := os.WriteFile(filepath.Join(jobDir, codeFile), []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write code: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, inputFile), []byte(input), 0o644); err != nil {
		return "", fmt.Errorf("write input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.dockerBin,
		"exec", containerName(lang), "sh", "-c", buildCommand(lang, jobID, codeFile, inputFile))
	// Do not wait out a grandchild that survives the kill holding our pipe.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("Error: Time limit exceeded (%d seconds)", int(r.timeout.Seconds())), nil
	}
	if err != nil {
		// A non-zero exit speaks through its own output; anything else is
		// still reported to the user rather than swallowed.
		if len(out) > 0 {
			return string(out), nil
		}
		return "Execution failed: " + err.Error(), nil
	}
	return string(out), nil
}

// containerName maps a language to its pre-provisioned container.
func containerName(lang rooms.Language) string {
	switch lang {
	case rooms.LanguagePython:
		return "code-python"
	case rooms.LanguageJavaScript:
		return "code-node"
	case rooms.LanguageJava:
		return "code-java"
	case rooms.LanguageCPP:
		return "code-cpp"
	}
	return ""
}

// codeFilename picks the staged source filename. javac requires the file to
// match the public class name; every other toolchain takes the job id stem.
func codeFilename(lang rooms.Language, jobID string) string {
	switch lang {
	case rooms.LanguageJava:
		return "Main.java"
	case rooms.LanguagePython:
		return jobID + ".py"
	case rooms.LanguageJavaScript:
		return jobID + ".js"
	case rooms.LanguageCPP:
		return jobID + ".cpp"
	}
	return jobID + ".txt"
}

// buildCommand builds the in-container shell command: compile if the
// language needs it, then run with the staged input on stdin.
func buildCommand(lang rooms.Language, jobID, codeFile, inputFile string) string {
	dir := containerMount + "/" + jobID
	codePath := dir + "/" + codeFile
	inputPath := dir + "/" + inputFile
	switch lang {
	case rooms.LanguagePython:
		return "cat " + inputPath + " | python3 " + codePath
	case rooms.LanguageJavaScript:
		return "cat " + inputPath + " | node " + codePath
	case rooms.LanguageJava:
		return "javac " + codePath + " && cat " + inputPath + " | java -cp " + dir + " Main"
	case rooms.LanguageCPP:
		return "g++ " + codePath + " -o " + dir + "/a.out && cat " + inputPath + " | " + dir + "/a.out"
	}
	return ""
}
