package supervisor

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// TailLog returns up to n trailing lines of the file at path, reading at
// most maxBytes from its end.
func TailLog(path string, n int, maxBytes int64) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size <= 0 || n <= 0 {
		return []string{}, nil
	}

	start := int64(0)
	if size > maxBytes {
		start = size - maxBytes
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}

	r := bufio.NewReader(f)
	if start > 0 {
		// Drop the partial first line.
		if _, err := r.ReadString('\n'); err != nil {
			if err == io.EOF {
				return []string{}, nil
			}
			return nil, err
		}
	}
	lines := []string{}
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
			if len(lines) > n {
				lines = lines[len(lines)-n:]
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return lines, nil
}
