package config

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	argv, err := shlex.Split(input)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", input, err)
	}
	return argv, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
