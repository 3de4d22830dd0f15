package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

type wireResponse struct {
	Success   *bool              `json:"success"`
	ExitCode  int                `json:"exitCode"`
	Output    string             `json:"output"`
	Error     string             `json:"error"`
	Timestamp string             `json:"timestamp"`
	Metadata  *map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON emits metadata only when it is non-nil.
func (r CliResponse) MarshalJSON() ([]byte, error) {
	w := wireResponse{
		Success:   &r.Success,
		ExitCode:  r.ExitCode,
		Output:    r.Output,
		Error:     r.Error,
		Timestamp: normalizeTime(r.Timestamp).Format(TimestampLayout),
	}
	if r.Metadata != nil {
		w.Metadata = &r.Metadata
	}
	return json.Marshal(w)
}

// UnmarshalJSON is strict: unknown fields are rejected and success and
// timestamp are required.
func (r *CliResponse) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireResponse
	if err := dec.Decode(&w); err != nil {
		return err
	}
	if w.Success == nil {
		return errors.New("response missing required field: success")
	}
	if w.Timestamp == "" {
		return errors.New("response missing required field: timestamp")
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", w.Timestamp, err)
	}

	*r = CliResponse{
		Success:   *w.Success,
		ExitCode:  w.ExitCode,
		Output:    w.Output,
		Error:     w.Error,
		Timestamp: normalizeTime(ts),
	}
	if w.Metadata != nil {
		r.Metadata = *w.Metadata
		if r.Metadata == nil {
			r.Metadata = map[string]string{}
		}
	}
	return nil
}

// Encode writes r to w as a single JSON line.
func Encode(w io.Writer, r CliResponse) error {
	if err := json.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// Decode reads one response from rd.
func Decode(rd io.Reader) (CliResponse, error) {
	var r CliResponse
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return CliResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return r, nil
}

// Marshal returns the wire form of r.
func Marshal(r CliResponse) ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal parses the wire form of a response.
func Unmarshal(data []byte) (CliResponse, error) {
	var r CliResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return CliResponse{}, err
	}
	return r, nil
}
