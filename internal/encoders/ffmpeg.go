package encoders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/models"
)

// FFmpegEncoder shells out to ffmpeg. Options are a JSON list of pass
// bundles; two bundles mean a two-pass encode where the first pass
// discards its output:
//
//	[
//	  {"outfile_options": [["vcodec","libx264"],["pass","1"],["an",null]]},
//	  {"outfile_options": [["vcodec","libx264"],["pass","2"],["ab","128k"]]}
//	]
//
// A null option value emits the bare flag with no argument.
type FFmpegEncoder struct {
	binPath string
	logger  arbor.ILogger
}

type ffmpegPass struct {
	InfileOptions  [][2]json.RawMessage `json:"infile_options"`
	OutfileOptions [][2]json.RawMessage `json:"outfile_options"`
}

func NewFFmpegEncoder(binPath string, logger arbor.ILogger) *FFmpegEncoder {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegEncoder{
		binPath: binPath,
		logger:  logger,
	}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, req Request) error {
	var passes []ffmpegPass
	if err := json.Unmarshal(req.Options, &passes); err != nil {
		return fmt.Errorf("ffmpeg options must be a list of pass bundles: %w", err)
	}
	if len(passes) == 0 {
		return fmt.Errorf("ffmpeg options contain no passes")
	}

	twoPass := len(passes) > 1
	for i, pass := range passes {
		lastPass := i == len(passes)-1

		args, err := assembleFFmpegArgs(pass, req.InputPath, req.OutputPath, twoPass && !lastPass)
		if err != nil {
			return err
		}

		// Fresh scratch dir per pass: ffmpeg writes pass log files with
		// fixed names into its working directory.
		scratch, err := req.ScratchDir()
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}

		e.logger.Debug().
			Str("bin", e.binPath).
			Int("pass", i+1).
			Strs("args", args).
			Msg("Running ffmpeg pass")

		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, e.binPath, args...)
		cmd.Dir = scratch
		cmd.Stdout = os.Stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return &Failure{
				Kind:   "ffmpeg",
				Stderr: models.TruncateDetail(stderr.String()),
				Err:    fmt.Errorf("pass %d: %w", i+1, err),
			}
		}
	}

	return nil
}

// assembleFFmpegArgs builds one pass's argument list:
//
//	ffmpeg -y [infile options] -i <input> [outfile options] <output>
//
// Discarding passes send their output to the null device.
func assembleFFmpegArgs(pass ffmpegPass, inputPath, outputPath string, discardOutput bool) ([]string, error) {
	args := []string{"-y"}

	infileArgs, err := optionArgs(pass.InfileOptions)
	if err != nil {
		return nil, fmt.Errorf("bad infile options: %w", err)
	}
	args = append(args, infileArgs...)

	args = append(args, "-i", inputPath)

	outfileArgs, err := optionArgs(pass.OutfileOptions)
	if err != nil {
		return nil, fmt.Errorf("bad outfile options: %w", err)
	}
	args = append(args, outfileArgs...)

	if discardOutput {
		args = append(args, os.DevNull)
	} else {
		args = append(args, outputPath)
	}

	return args, nil
}

func optionArgs(options [][2]json.RawMessage) ([]string, error) {
	var args []string
	for _, opt := range options {
		var flag string
		if err := json.Unmarshal(opt[0], &flag); err != nil {
			return nil, fmt.Errorf("option flag %s is not a string: %w", string(opt[0]), err)
		}
		args = append(args, "-"+flag)

		value, err := optionValue(opt[1])
		if err != nil {
			return nil, fmt.Errorf("option -%s: %w", flag, err)
		}
		if value != "" {
			args = append(args, value)
		}
	}
	return args, nil
}

// optionValue renders an option argument. Null means a bare flag; zero
// is a real value and must survive.
func optionValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported option value %s", string(raw))
}
