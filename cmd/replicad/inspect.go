package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	clierrors "github.com/apistol78/traktor-sub009/internal/errors"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/protocol"
	"github.com/apistol78/traktor-sub009/pkg/recorder"
)

type inspectOptions struct {
	peer     uint64
	types    []string
	hexDump  bool
	showPeer bool
}

func inspectCmd() *cobra.Command {
	opts := inspectOptions{showPeer: true}

	cmd := &cobra.Command{
		Use:   "inspect <recording>...",
		Short: "Decode recorded traffic",
		Long: `Decode one or more recording segments and print every message.

Examples:
  replicad inspect recordings/*.rec
  replicad inspect --peer 2 --type State,Event segment.rec`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return clierrors.New("R301").Wrap(err)
				}
				err = inspect(cmd.OutOrStdout(), f, opts)
				f.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&opts.peer, "peer", 0, "Only show traffic with this peer handle")
	cmd.Flags().StringSliceVarP(&opts.types, "type", "t", nil, "Only show these message types (e.g. State,Event)")
	cmd.Flags().BoolVarP(&opts.hexDump, "hex", "x", false, "Print raw datagram bytes")

	return cmd
}

// inspect prints the records of one segment.
func inspect(w io.Writer, r io.Reader, opts inspectOptions) error {
	rd, err := recorder.NewReader(r)
	if err != nil {
		if errors.Is(err, recorder.ErrBadMagic) || errors.Is(err, recorder.ErrBadVersion) {
			return clierrors.New("R300").Wrap(err)
		}
		return clierrors.New("R301").Wrap(err)
	}
	hdr := rd.Header()
	fmt.Fprintf(w, "session %s started %s\n", hdr.Session, hdr.Started.UTC().Format("2006-01-02T15:04:05.000Z"))

	var shown, total int
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return clierrors.New("R301").Wrap(err)
		}
		total++
		if opts.peer != 0 && rec.Peer != peers.Handle(opts.peer) {
			continue
		}

		desc := ""
		msg, err := protocol.DecodeMessage(rec.Data)
		if err != nil {
			desc = "undecodable: " + err.Error()
		} else {
			if len(opts.types) > 0 && !containsFold(opts.types, msg.Type.String()) {
				continue
			}
			desc = msg.String()
		}
		shown++

		fmt.Fprintf(w, "%10.3f %s peer=%-4d %4dB %s\n", rec.Time, rec.Direction, rec.Peer, len(rec.Data), desc)
		if opts.hexDump {
			fmt.Fprintf(w, "           % x\n", rec.Data)
		}
	}
	fmt.Fprintf(w, "%d of %d records\n", shown, total)
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
