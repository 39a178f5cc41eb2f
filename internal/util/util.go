/*
Package util includes utility/helper functions that may be useful to other modules.
*/
package util

// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ExpandUser expands '~' to user's home directory, if found, otherwise returns original path
func ExpandUser(path string) string {
	usr, _ := user.Current()
	if path == "~" {
		return usr.HomeDir
	} else if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(usr.HomeDir, path[2:])
	} else {
		return path
	}
}

// AbsPath returns absolute path after expanding '~' to user's home dir
// Useful when application is started by a process that isn't a shell
// Use everywhere in place of filepath.Abs()
func AbsPath(path string) (string, error) {
	return filepath.Abs(ExpandUser(path))
}

// FileExists checks if a file exists at the given path.
// It returns a boolean indicating whether the file exists, and an error if the
// path refers to a non-regular file, e.g., a directory.
func FileExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			exists = false
			err = nil
			return
		}
		return
	}
	if !fileInfo.Mode().IsRegular() {
		err = fmt.Errorf("%s not a file", path)
		return
	}
	exists = true
	return
}

// ParseNumber parses a decimal or 0x-prefixed hexadecimal string into a
// uint64. Register indexes and raw values on the command line accept both
// forms.
func ParseNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// IntRangeToIntList expands a string representing a range of integers into a slice of integers.
// The function returns a slice of integers representing the expanded range.
// For example, "1-3" will be expanded to [1, 2, 3]. And, "5" will be expanded to [5].
// If the input string is not in a valid format, it returns an error.
func IntRangeToIntList(input string) ([]int, error) {
	// check input format matches "start-end", or "start"
	re := regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)
	matches := re.FindStringSubmatch(input)
	if len(matches) == 0 {
		err := fmt.Errorf("invalid input format: %s", input)
		return nil, err
	}
	start, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid start value: %s", matches[1])
	}
	// if end value is empty, return a slice with the start value
	if matches[2] == "" {
		return []int{start}, nil
	}
	end, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid end value: %s", matches[2])
	}
	if start > end {
		return nil, fmt.Errorf("start value is greater than end value: %d > %d", start, end)
	}
	result := make([]int, end-start+1)
	for i := start; i <= end; i++ {
		result[i-start] = i
	}
	return result, nil
}

// SelectiveIntRangeToIntList expands a string representing a selective range of integers into a slice of integers.
// For example "1-3,7,9,11-13" will be expanded to [1, 2, 3, 7, 9, 11, 12, 13].
// An error is returned if the input string is not in a valid format.
func SelectiveIntRangeToIntList(input string) ([]int, error) {
	var result []int
	for _, r := range strings.Split(input, ",") {
		ints, err := IntRangeToIntList(r)
		if err != nil {
			return nil, err
		}
		result = append(result, ints...)
	}
	return result, nil
}

// IntSliceToStringSlice converts a slice of integers to a slice of strings.
func IntSliceToStringSlice(ints []int) []string {
	strs := make([]string, len(ints))
	for i, v := range ints {
		strs[i] = strconv.Itoa(v)
	}
	return strs
}
