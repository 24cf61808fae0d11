package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestStreamingUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "valid ASCII",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "valid UTF-8 with multibyte",
			input:    []byte("hello,welt"),
			expected: "hello,welt",
		},
		{
			name:     "invalid single byte replaced",
			input:    []byte{'h', 'e', 0x80, 'l', 'o'},
			expected: "he?lo", // Invalid byte replaced with ?
		},
		{
			name:     "empty input",
			input:    []byte{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewStreamingUTF8Sanitizer(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestStreamingCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	reader := NewStreamingCountingReader(strings.NewReader(input), int64(len(input)))

	// Read in chunks
	buf := make([]byte, 100)
	totalRead := 0
	for {
		n, err := reader.Read(buf)
		totalRead += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if totalRead != len(input) {
		t.Errorf("total read = %d, want %d", totalRead, len(input))
	}

	if reader.BytesRead != int64(len(input)) {
		t.Errorf("BytesRead = %d, want %d", reader.BytesRead, len(input))
	}

	if reader.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", reader.Progress())
	}
}

func TestUTF8Validator(t *testing.T) {
	t.Run("valid input passes through", func(t *testing.T) {
		input := "meter,value\nélectrique,1.5\n"
		got, err := io.ReadAll(NewUTF8Validator(strings.NewReader(input)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != input {
			t.Errorf("got %q, want %q", got, input)
		}
	})

	t.Run("invalid byte fails", func(t *testing.T) {
		input := []byte{'o', 'k', '\n', 0xff, 'x'}
		_, err := io.ReadAll(NewUTF8Validator(bytes.NewReader(input)))
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("err = %v, want ErrInvalidEncoding", err)
		}
		if !strings.Contains(err.Error(), "byte offset 3") {
			t.Errorf("error %q should name the byte offset", err)
		}
	})

	t.Run("rune split across reads", func(t *testing.T) {
		input := "aé"
		got, err := io.ReadAll(NewUTF8Validator(iotest.OneByteReader(strings.NewReader(input))))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != input {
			t.Errorf("got %q, want %q", got, input)
		}
	})
}

func TestWrapForStreaming(t *testing.T) {
	// BOM followed by an invalid byte
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	t.Run("lenient", func(t *testing.T) {
		reader, counter := WrapForStreaming(bytes.NewReader(input), int64(len(input)), true)
		result, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// BOM should be stripped, invalid byte replaced
		if string(result) != "he?lo" {
			t.Errorf("got %q, want %q", string(result), "he?lo")
		}
		if counter.BytesRead != int64(len(input)) {
			t.Errorf("BytesRead = %d, want %d", counter.BytesRead, len(input))
		}
	})

	t.Run("strict", func(t *testing.T) {
		reader, _ := WrapForStreaming(bytes.NewReader(input), int64(len(input)), false)
		_, err := io.ReadAll(reader)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("err = %v, want ErrInvalidEncoding", err)
		}
	})
}
