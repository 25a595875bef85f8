package geoai

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ReadClassNames reads one class name per line in training order. Blank
// lines and lines starting with # are skipped.
func ReadClassNames(r io.Reader) ([]string, error) {

	var names []string

	sc := bufio.NewScanner(r)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		names = append(names, line)
	}

	if err := sc.Err(); err != nil {
		return nil, NewError(BadInput, "ReadClassNames", err)
	}

	return names, nil
}

// LoadClassNames reads the class names file of a model
func LoadClassNames(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, NewError(BadInput, "LoadClassNames", err)
	}

	defer f.Close()

	names, err := ReadClassNames(f)

	if err == nil && len(names) == 0 {
		err = Errorf(EmptyInput, "LoadClassNames", "%s holds no class names", file)
	}

	return names, err
}
