package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/simaogato/cryptokiosk-backend/internal/adapter/grpc"
	"github.com/simaogato/cryptokiosk-backend/internal/config"
)

const rpcTimeout = 10 * time.Second

// dial connects to the kiosk server named by --target, or by server.addr when unset
func dial(cmd *cobra.Command) (*grpcadapter.Client, context.Context, func(), error) {
	cfg, err := config.Load(cmd, configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	target, _ := cmd.Flags().GetString("target")
	if target == "" {
		target = cfg.Server.Addr
	}
	if strings.HasPrefix(target, ":") {
		target = "localhost" + target
	}

	conn, err := grpclib.NewClient(target, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+cfg.Server.APIToken)

	return grpcadapter.NewClient(conn), ctx, func() {
		cancel()
		_ = conn.Close()
	}, nil
}

func addTargetFlag(cmd *cobra.Command) {
	cmd.Flags().String("target", "", "kiosk server address (defaults to server.addr)")
}

func printStruct(cmd *cobra.Command, s *structpb.Struct) error {
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// parsePayload turns key=value arguments into an action payload
func parsePayload(args []string) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("payload argument %q must look like key=value", arg)
		}
		payload[strings.TrimSpace(key)] = value
	}
	return payload, nil
}

func newActionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action <name> [key=value...]",
		Short: "Send one action to a running kiosk and print the resulting view",
		Example: `  kiosk action start_purchase
  kiosk action send_code phone=1155551234
  kiosk action request_quote amount=100000
  kiosk action view`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, done, err := dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			var resp *structpb.Struct
			if args[0] == "view" {
				resp, err = client.GetView(ctx, &structpb.Struct{})
			} else {
				payload, perr := parsePayload(args[1:])
				if perr != nil {
					return perr
				}
				req, serr := structpb.NewStruct(map[string]interface{}{
					"action":  args[0],
					"payload": payload,
				})
				if serr != nil {
					return serr
				}
				resp, err = client.Dispatch(ctx, req)
			}
			if err != nil {
				return err
			}
			return printStruct(cmd, resp)
		},
	}
	addTargetFlag(cmd)
	return cmd
}

func newTransactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List completed transactions of a running kiosk, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, ctx, done, err := dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			req, err := structpb.NewStruct(map[string]interface{}{"limit": limit, "offset": offset})
			if err != nil {
				return err
			}

			resp, err := client.ListTransactions(ctx, req)
			if err != nil {
				return err
			}
			return printStruct(cmd, resp)
		},
	}
	addTargetFlag(cmd)
	cmd.Flags().Int("limit", 20, "maximum number of transactions")
	cmd.Flags().Int("offset", 0, "number of transactions to skip")
	return cmd
}
