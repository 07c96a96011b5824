package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/peer-watch/internal/node"
	"github.com/rudransh-shrivastava/peer-watch/internal/playback"
	"github.com/rudransh-shrivastava/peer-watch/internal/signaling"
	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport/webrtc"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errQuit = errors.New("quit")

const connectParallelism = 4

type partyOptions struct {
	Room      string
	SignalURL string
	Name      string
	Source    transfer.Source
	// RequestFrom selects the peers asked for media on join: empty asks
	// nobody, "*" asks every peer.
	RequestFrom string
	NewSink     transfer.SinkFactory
	History     store.HistoryRepository
	Log         *logrus.Logger
	In          io.Reader
	Out         io.Writer
}

func defaultName() string {
	return "peer-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// runParty joins the room and serves the node until ctx is done or the
// user quits.
func runParty(ctx context.Context, opts partyOptions) error {
	log := opts.Log
	view := &progressView{out: opts.Out}

	sig, err := signaling.Dial(ctx, opts.SignalURL, opts.Room, opts.Name, log)
	if err != nil {
		return err
	}
	defer sig.Close()

	tr := webrtc.New(sig, webrtc.DefaultSTUNServers())
	defer tr.Close()

	n := node.New(node.Options{
		LocalID:  opts.Name,
		Room:     sig.Room(),
		Config:   node.DefaultConfig(),
		Source:   opts.Source,
		History:  opts.History,
		NewSink:  opts.NewSink,
		Logger:   log,
		OnEvent:  view.handle,
		OnStatus: view.status,
	})
	defer n.Close()

	fmt.Fprintf(opts.Out, "Joined room %s as %s\n", sig.Room(), opts.Name)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		transport.ServeSignals(ctx, sig, tr, func(s transport.Signal, err error) {
			log.Warnf("Failed to handle signal from %s: %v", s.PeerID, err)
		})
		return nil
	})
	g.Go(func() error {
		n.AcceptFrom(ctx, tr)
		return nil
	})
	g.Go(func() error {
		watchRoom(ctx, sig, tr, opts.Out)
		return nil
	})
	g.Go(func() error {
		return connectPeers(ctx, n, tr, sig.Peers(), opts)
	})
	g.Go(func() error {
		return readCommands(ctx, n, opts.In, opts.Out)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// connectPeers offers a channel to every peer already in the room.
// Failures are logged; the peer can still connect to us later.
func connectPeers(ctx context.Context, n *node.Node, tr *webrtc.Transport, peers []string, opts partyOptions) error {
	sort.Strings(peers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(connectParallelism)

	for _, peerID := range peers {
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			conn, err := tr.Connect(connectCtx, peerID, transport.ConnectionMetadata{Room: n.Room()})
			if err != nil {
				opts.Log.Warnf("Failed to connect to %s: %v", peerID, err)
				return nil
			}
			if err := n.Attach(conn); err != nil {
				_ = conn.Close()
				return err
			}
			if opts.RequestFrom == "*" || opts.RequestFrom == peerID {
				if err := n.RequestMedia(peerID); err != nil {
					opts.Log.Warnf("Failed to request media from %s: %v", peerID, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func watchRoom(ctx context.Context, sig *signaling.Client, tr *webrtc.Transport, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sig.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case signaling.TypeJoined:
				fmt.Fprintf(out, "%s joined the room\n", ev.From)
			case signaling.TypeLeft:
				fmt.Fprintf(out, "%s left the room\n", ev.From)
				tr.Forget(ev.From)
			}
		}
	}
}

// readCommands applies playback commands typed on in. EOF stops reading
// without leaving the room.
func readCommands(ctx context.Context, n *node.Node, in io.Reader, out io.Writer) error {
	if in == nil {
		return nil
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := runCommand(n, line, out); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

func runCommand(n *node.Node, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	player := n.Player()
	switch fields[0] {
	case "play":
		player.Play()
	case "pause":
		player.Pause()
	case "seek":
		if len(fields) != 2 {
			return errors.New("usage: seek <seconds>")
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("invalid position %q", fields[1])
		}
		player.SeekTo(secs)
	case "status":
		state := "playing"
		if player.Paused() {
			state = "paused"
		}
		fmt.Fprintf(out, "%s at %s\n", state, playback.FormatTimestamp(player.CurrentTime()))
		for _, peerID := range n.Peers() {
			if snap, ok := n.Snapshot(peerID); ok && snap.Session.ExpectedSize > 0 {
				fmt.Fprintf(out, "  %s: %s %.0f%%\n", peerID, snap.Session.State, snap.Session.Progress()*100)
			}
		}
	case "peers":
		fmt.Fprintln(out, strings.Join(n.Peers(), " "))
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (play, pause, seek <s>, status, peers, quit)", fields[0])
	}
	return nil
}

// progressView renders transfer events as one progress bar per session.
type progressView struct {
	out io.Writer

	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

func (v *progressView) handle(ev transfer.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.bars == nil {
		v.bars = make(map[string]*progressbar.ProgressBar)
	}
	bar := v.bars[ev.PeerID]

	switch ev.Kind {
	case transfer.EventStarted:
		if bar != nil {
			_ = bar.Exit()
		}
		v.bars[ev.PeerID] = progressbar.NewOptions64(int64(ev.Session.ExpectedSize),
			progressbar.OptionSetWriter(v.out),
			progressbar.OptionSetDescription("receiving from "+ev.PeerID),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(v.out) }),
		)
	case transfer.EventProgress:
		if bar != nil {
			_ = bar.Set64(int64(ev.Session.AppliedSize))
		}
	case transfer.EventCompleted:
		if bar != nil {
			_ = bar.Finish()
			delete(v.bars, ev.PeerID)
		}
		fmt.Fprintf(v.out, "Buffered %d bytes from %s, ready to play\n", ev.Session.AppliedSize, ev.PeerID)
	case transfer.EventFailed, transfer.EventDisconnected:
		if bar != nil {
			_ = bar.Exit()
			delete(v.bars, ev.PeerID)
		}
		fmt.Fprintf(v.out, "Transfer from %s stopped: %v\n", ev.PeerID, ev.Err)
	}
}

func (v *progressView) status(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, line)
}
