package pdf

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const jobFilePattern = ".job-*.json"

// writeJobFile は翻訳コマンドに渡すジョブファイルを dir に書き出し、そのパスを返します。
func writeJobFile(dir string, spec *JobSpec) (string, error) {
	if spec == nil {
		return "", errors.New("job spec is nil")
	}
	file, err := os.CreateTemp(dir, jobFilePattern)
	if err != nil {
		return "", errors.Wrap(err, "failed to create job file")
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(spec); err != nil {
		_ = os.Remove(file.Name())
		return "", errors.Wrap(err, "failed to write job file")
	}
	return file.Name(), nil
}

// LoadJobFile は JSON のジョブファイルを読み込み、ValidateJob と同じ規則で検証します。
func LoadJobFile(path string) (*JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read job file")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse job file")
	}
	if raw == nil {
		return nil, &ValidationError{Field: "inputs", Message: "inputs must be a non-empty array of PDF paths"}
	}
	return ValidateJob(raw)
}
