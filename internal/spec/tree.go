package spec

import "errors"

// ErrSkipCommand can be returned from a Walk callback to skip a command's subtree.
var ErrSkipCommand = errors.New("skip command")

// Resolve walks the tree along path and returns the addressed command.
func (s *Spec) Resolve(path []string) (*Command, error) {
	if len(path) == 0 {
		return nil, &UnknownCommandError{Path: path}
	}
	cmds := s.Commands
	var cur *Command
	for _, seg := range path {
		next, ok := cmds.Get(seg)
		if !ok {
			return nil, &UnknownCommandError{Path: append([]string(nil), path...)}
		}
		cur = next
		cmds = next.Commands
	}
	return cur, nil
}

// Walk visits every command depth first in declaration order.
// Returning ErrSkipCommand skips the subtree; any other error stops the walk.
func (s *Spec) Walk(fn func(path []string, c *Command) error) error {
	return walk(s.Commands, nil, fn)
}

func walk(cmds Commands, prefix []string, fn func([]string, *Command) error) error {
	for _, e := range cmds.Entries() {
		path := append(append([]string(nil), prefix...), e.Name)
		err := fn(path, e.Command)
		if errors.Is(err, ErrSkipCommand) {
			continue
		}
		if err != nil {
			return err
		}
		if err := walk(e.Command.Commands, path, fn); err != nil {
			return err
		}
	}
	return nil
}
