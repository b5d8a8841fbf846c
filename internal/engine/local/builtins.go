package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sourceplane/flowline/internal/model"
)

// Builtins returns the functions available to function steps by name.
func Builtins() map[string]model.Func {
	return map[string]model.Func{
		"touch":  touch,
		"concat": concat,
		"copy":   copyFile,
		"echo":   echo,
		"sleep":  sleep,
	}
}

// touch creates every output path.
func touch(_ context.Context, call model.Call) (any, error) {
	for _, out := range call.Outputs {
		if err := ensureDir(out); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to touch %s: %w", out, err)
		}
		f.Close()
	}
	return len(call.Outputs), nil
}

// concat writes the inputs, in order, to the first output.
func concat(_ context.Context, call model.Call) (any, error) {
	if len(call.Outputs) == 0 {
		return nil, fmt.Errorf("concat requires an output")
	}
	if err := ensureDir(call.Outputs[0]); err != nil {
		return nil, err
	}
	dst, err := os.Create(call.Outputs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", call.Outputs[0], err)
	}
	defer dst.Close()

	var total int64
	for _, in := range call.Inputs {
		src, err := os.Open(in)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", in, err)
		}
		n, err := io.Copy(dst, src)
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", in, err)
		}
		total += n
	}
	return total, nil
}

// copyFile copies the first input to the first output.
func copyFile(ctx context.Context, call model.Call) (any, error) {
	if len(call.Inputs) == 0 || len(call.Outputs) == 0 {
		return nil, fmt.Errorf("copy requires an input and an output")
	}
	return concat(ctx, model.Call{Inputs: call.Inputs[:1], Outputs: call.Outputs[:1]})
}

// echo writes its arguments to the unit's stdout.
func echo(_ context.Context, call model.Call) (any, error) {
	parts := make([]string, 0, len(call.Args))
	for _, a := range call.Args {
		parts = append(parts, fmt.Sprint(a))
	}
	line := strings.Join(parts, " ")
	if call.Stdout != nil {
		if _, err := fmt.Fprintln(call.Stdout, line); err != nil {
			return nil, err
		}
	}
	return line, nil
}

// sleep waits for the duration given as the first argument or the "duration" kwarg.
// Plain numbers are seconds.
func sleep(ctx context.Context, call model.Call) (any, error) {
	var raw any
	if len(call.Args) > 0 {
		raw = call.Args[0]
	} else if v, ok := call.Kwargs["duration"]; ok {
		raw = v
	}
	d, err := parseDuration(raw)
	if err != nil {
		return nil, err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return d.String(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func parseDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("invalid duration %v", raw)
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
