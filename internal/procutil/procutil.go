// Package procutil names the local processes that connect to the API socket,
// so debug logs show which client made a request.
package procutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// procRoot is replaced in tests with a fake tree.
var procRoot = "/proc"

// peerDepth bounds how many ancestors DescribePeer lists.
const peerDepth = 3

// Proc is one entry in a peer's ancestry.
type Proc struct {
	PID  int32
	Name string
}

func (p Proc) String() string {
	name := p.Name
	if name == "" {
		name = "?"
	}
	return name + "[" + strconv.Itoa(int(p.PID)) + "]"
}

// readStat returns the name and parent pid recorded in <procRoot>/<pid>/stat.
// The name sits between the first '(' and the last ')' and may hold spaces.
func readStat(pid int32) (name string, ppid int32, err error) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(int(pid)), "stat"))
	if err != nil {
		return "", 0, err
	}
	s := string(data)
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return "", 0, fmt.Errorf("stat of %d: malformed", pid)
	}
	// After the name: state ppid pgrp ...
	rest := strings.Fields(s[end+1:])
	if len(rest) < 2 {
		return "", 0, fmt.Errorf("stat of %d: truncated", pid)
	}
	parent, err := strconv.ParseInt(rest[1], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("stat of %d: ppid: %w", pid, err)
	}
	return s[open+1 : end], int32(parent), nil
}

// Ancestry returns pid followed by up to depth of its ancestors. The walk
// stops before init and at the first process it cannot read.
func Ancestry(pid int32, depth int) []Proc {
	var line []Proc
	for p := pid; p > 1 && len(line) <= depth; {
		name, ppid, err := readStat(p)
		if err != nil {
			break
		}
		line = append(line, Proc{PID: p, Name: name})
		p = ppid
	}
	return line
}

// DescribePeer renders the process behind pid and its closest ancestors as
// "curl[812] <- bash[640]". A process that has already exited renders as
// "?[pid]".
func DescribePeer(pid int32) string {
	line := Ancestry(pid, peerDepth)
	if len(line) == 0 {
		return Proc{PID: pid}.String()
	}
	parts := make([]string, len(line))
	for i, p := range line {
		parts[i] = p.String()
	}
	return strings.Join(parts, " <- ")
}
