package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"replicator/internal/server"
)

func newSubmitCommand() *cobra.Command {
	var (
		addr    string
		mode    string
		drain   bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit PAYLOAD",
		Short: "Submit a write to a running coordinator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := server.Dial(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			reply, err := client.Submit(ctx, []byte(args[0]), mode, drain)
			if err != nil {
				return err
			}
			printReply(cmd, reply)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:50051", "Coordinator address")
	f.StringVar(&mode, "mode", "", "Replication mode; the server default when empty")
	f.BoolVar(&drain, "drain", false, "Wait for every replica on semi-sync writes")
	f.DurationVar(&timeout, "timeout", 0, "Give up waiting after this long (0 waits indefinitely)")
	return cmd
}

func printReply(cmd *cobra.Command, reply *server.SubmitReply) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entry %d (%s) %s: %d/%d acknowledged\n",
		reply.Sequence, reply.Policy, reply.Outcome, reply.Acked, reply.Replicas)
	for _, ack := range reply.Acks {
		fmt.Fprintf(out, "  %s replicated after %s\n", ack.ReplicaID, ack.Elapsed.Round(time.Millisecond))
	}
}
