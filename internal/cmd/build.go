package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jhump/reflectserver/descmap"
	"github.com/jhump/reflectserver/internal/compile"
)

func getCmdBuild(c *rootCommand) *cobra.Command {
	var (
		in     compile.Inputs
		output string
	)
	buildCmd := &cobra.Command{
		Use:   "build [flags] [file.proto...]",
		Short: "Build a descriptor map",
		Long: `Build a descriptor map from .proto sources and descriptor sets.

  Sources are compiled in-process; imports of the well-known types under
  google/protobuf resolve to built-in copies. Descriptor sets must be
  produced with "protoc --include_imports". Every imported file must be
  part of the input, or the build fails.`,
		Example: `  reflectmap build -I proto -o service.map helloworld/greeter.proto
  reflectmap build --descriptor-set all.pb -o service.map`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Files = args
			if len(in.Files) == 0 && len(in.DescriptorSets) == 0 {
				return fmt.Errorf("nothing to build: give .proto files or --descriptor-set")
			}
			return c.build(in, output)
		},
	}

	flags := buildCmd.Flags()
	flags.StringArrayVarP(&in.ImportPaths, "import-path", "I", nil, "directory to search for .proto files and imports")
	flags.StringArrayVar(&in.DescriptorSets, "descriptor-set", nil, "serialized FileDescriptorSet to include")
	flags.StringVarP(&output, "output", "o", "", "path of the descriptor map to write")
	_ = buildCmd.MarkFlagRequired("output")
	return buildCmd
}

func (c *rootCommand) build(in compile.Inputs, output string) (err error) {
	files, err := compile.Load(c.gs.Ctx, c.gs.FS, in)
	if err != nil {
		return err
	}

	f, err := c.gs.FS.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	if err := descmap.Write(c.gs.Ctx, f, files); err != nil {
		return fmt.Errorf("failed to build %s: %w", output, err)
	}

	c.gs.Logger.WithFields(logrus.Fields{
		"files":  len(files),
		"output": output,
	}).Info("Descriptor map written")
	return nil
}
