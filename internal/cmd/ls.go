package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoprint"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/jhump/reflectserver/grpcreflect"
)

func getCmdLs(c *rootCommand) *cobra.Command {
	var long bool
	lsCmd := &cobra.Command{
		Use:   "ls ADDR [SERVICE[/METHOD]]",
		Short: "List the services or methods of a reflection server",
		Long: `List the services exposed by the server at ADDR, or the methods of one
  service. With --long, print their definitions in proto syntax instead of
  their names.`,
		Example: `  reflectmap ls localhost:50051
  reflectmap ls localhost:50051 helloworld.Greeter -l
  reflectmap ls localhost:50051 helloworld.Greeter/SayHello`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withClient(args[0], func(client *grpcreflect.Client) error {
				if len(args) == 1 {
					return c.listServices(client, long)
				}
				return c.listService(client, args[1], long)
			})
		},
	}
	lsCmd.Flags().BoolVarP(&long, "long", "l", false, "print definitions instead of names")
	return lsCmd
}

func getCmdType(c *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "type ADDR SYMBOL",
		Short: "Print the definition of a symbol known to a reflection server",
		Example: `  reflectmap type localhost:50051 helloworld.HelloRequest
  reflectmap type localhost:50051 helloworld.Locale.LOCALE_EN`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.withClient(args[0], func(client *grpcreflect.Client) error {
				d, err := resolve(client, args[1])
				if err != nil {
					return err
				}
				return c.printDefinition(d)
			})
		},
	}
}

func (c *rootCommand) withClient(addr string, fn func(*grpcreflect.Client) error) error {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer func() {
		_ = cc.Close()
	}()
	client := grpcreflect.NewClientAuto(c.gs.Ctx, cc)
	defer client.Reset()
	c.gs.Logger.WithField("addr", addr).Debug("Connected to reflection server")
	return fn(client)
}

func (c *rootCommand) listServices(client *grpcreflect.Client, long bool) error {
	names, err := client.ListServices()
	if err != nil {
		return err
	}
	sort.Slice(names, func(i, j int) bool {
		return names[i] < names[j]
	})
	for _, name := range names {
		if !long {
			_, _ = fmt.Fprintln(c.gs.Stdout, name)
			continue
		}
		d, err := resolve(client, string(name))
		if err != nil {
			return err
		}
		if err := c.printDefinition(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *rootCommand) listService(client *grpcreflect.Client, arg string, long bool) error {
	svcName, methodName, hasMethod := strings.Cut(arg, "/")
	d, err := resolve(client, svcName)
	if err != nil {
		return err
	}
	sd, ok := d.(*desc.ServiceDescriptor)
	if !ok {
		return fmt.Errorf("%s is not a service", svcName)
	}

	if hasMethod {
		for _, md := range sd.GetMethods() {
			if md.GetName() != methodName {
				continue
			}
			if long {
				return c.printDefinition(md)
			}
			_, _ = fmt.Fprintln(c.gs.Stdout, md.GetName())
			return nil
		}
		return fmt.Errorf("service %s has no method named %s", svcName, methodName)
	}

	if long {
		return c.printDefinition(sd)
	}
	for _, md := range sd.GetMethods() {
		_, _ = fmt.Fprintln(c.gs.Stdout, md.GetName())
	}
	return nil
}

func (c *rootCommand) printDefinition(d desc.Descriptor) error {
	printer := &protoprint.Printer{}
	str, err := printer.PrintProtoToString(d)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(c.gs.Stdout, str)
	return err
}

// resolve asks the server for the file that declares symbol and returns the
// symbol's descriptor. Enum values may be named either as siblings of their
// enum or qualified by it.
func resolve(client *grpcreflect.Client, symbol string) (desc.Descriptor, error) {
	fd, err := client.FileContainingSymbol(protoreflect.FullName(symbol))
	if err != nil {
		return nil, err
	}
	var files protoregistry.Files
	if err := files.RegisterFile(fd); err != nil {
		return nil, err
	}

	name := protoreflect.FullName(symbol)
	d, err := files.FindDescriptorByName(name)
	if err != nil {
		parent, perr := files.FindDescriptorByName(name.Parent())
		ed, ok := parent.(protoreflect.EnumDescriptor)
		if perr != nil || !ok || ed.Values().ByName(name.Name()) == nil {
			return nil, fmt.Errorf("%s does not declare %s", fd.Path(), symbol)
		}
		d = ed.Values().ByName(name.Name())
	}
	return desc.WrapDescriptor(d)
}
