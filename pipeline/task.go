package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ifaistartup/go-geoai/export"
	"github.com/ifaistartup/go-geoai/log"
	"go.uber.org/zap"
)

// task is the scratch workspace of one run. Outputs are written under dir
// and published to the output directory once the run succeeds.
type task struct {
	id   string
	name string
	// root is the per task scratch directory, dir holds the outputs
	root string
	dir  string
}

func (r *Runner) newTask(name string) (*task, error) {

	id := uuid.NewString()
	root := filepath.Join(r.cfg.Run.ScratchDir, id)
	dir := filepath.Join(root, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating scratch directory: %w", err)
	}

	log.Debug(logTag+"task started", zap.String("task", id), zap.String("name", name),
		zap.String("scratch", root))

	return &task{id: id, name: name, root: root, dir: dir}, nil
}

// path returns a file path in the task output directory
func (t *task) path(elem ...string) string {
	return filepath.Join(append([]string{t.dir}, elem...)...)
}

// cleanup removes the scratch directory
func (t *task) cleanup() {

	if err := os.RemoveAll(t.root); err != nil {
		log.Warn(logTag+"scratch cleanup failed", zap.String("task", t.id), zap.Error(err))
	}
}

// publish moves the outputs to outDir, as <name>.zip when zipped, and
// returns the published path. The scratch directory is removed either way.
func (t *task) publish(outDir string, zipped bool) (string, error) {

	defer t.cleanup()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}

	if zipped {
		dst := filepath.Join(outDir, t.name+".zip")

		if err := export.ZipDir(t.dir, dst); err != nil {
			os.Remove(dst)
			return "", err
		}

		return dst, nil
	}

	dst := filepath.Join(outDir, t.name)

	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("error replacing %s: %w", dst, err)
	}

	if err := os.Rename(t.dir, dst); err == nil {
		return dst, nil
	}

	// scratch and output may be on different devices
	if err := copyOut(t.dir, dst); err != nil {
		return "", err
	}

	return dst, nil
}

// copyOut copies the tree at src to dst. A partial copy is removed.
func copyOut(src, dst string) error {

	if err := copyTree(src, dst); err != nil {
		if rerr := os.RemoveAll(dst); rerr != nil {
			log.Warn(logTag+"partial output not removed", zap.String("output", dst), zap.Error(rerr))
		}

		return fmt.Errorf("error copying outputs to %s: %w", dst, err)
	}

	return nil
}

// run executes fn in a fresh task and publishes its outputs. On failure or
// cancellation the partial outputs are deleted.
func (r *Runner) run(ctx context.Context, name string, fn func(t *task) error) (string, error) {

	t, err := r.newTask(name)

	if err != nil {
		return "", err
	}

	if err := fn(t); err != nil {
		t.cleanup()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn(logTag+"task cancelled", zap.String("task", t.id), zap.String("name", name))
		} else {
			log.Error(logTag+"task failed", zap.String("task", t.id), zap.String("name", name), zap.Error(err))
		}

		return "", err
	}

	if err := ctx.Err(); err != nil {
		t.cleanup()
		return "", err
	}

	out, err := t.publish(r.cfg.Run.OutputDir, r.cfg.Run.Zip)

	if err != nil {
		return "", err
	}

	log.Info(logTag+"task done", zap.String("task", t.id), zap.String("name", name), zap.String("output", out))

	return out, nil
}

func copyTree(src, dst string) error {

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)

		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {

	in, err := os.Open(src)

	if err != nil {
		return err
	}

	defer in.Close()

	out, err := os.Create(dst)

	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
