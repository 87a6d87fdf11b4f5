package cliplugins

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"qbmerge/internal/storage"
)

// CorruptCommand zero-fills part of a file, to produce damaged data for
// trying out repairs.
type CorruptCommand struct {
	cmd *cobra.Command
}

func NewCorruptCommand() *CorruptCommand {
	return &CorruptCommand{}
}

func (c *CorruptCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "corrupt <path> <offset> <size>",
		Short: "Overwrite a byte range of a file with zeros",
		Args:  cobra.ExactArgs(3),
	}
	return c.cmd
}

func (c *CorruptCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	path := args[0]
	offset, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[1], err)
	}
	size, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[2], err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if offset < 0 || size < 0 || offset+size > info.Size() {
		return fmt.Errorf("range %d+%d outside %s of %d bytes", offset, size, path, info.Size())
	}

	if err := storage.ZeroFill(path, offset, size); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "zeroed %d bytes of %s at %d\n", size, path, offset)
	return nil
}
