package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/cli"
	"go.dedis.ch/veilroll/contracts/lottery"
	"go.dedis.ch/veilroll/contracts/lottery/client"
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/crypto/loader"
	"go.dedis.ch/veilroll/fhe"
	"go.dedis.ch/veilroll/node"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	defaultTimeout = 30 * time.Second
	playersFolder  = "players"
)

// playAction runs a node and plays one round for a player.
type playAction struct {
	out io.Writer
}

// Execute runs the action.
func (a playAction) Execute(flags cli.Flags) error {
	first, err := number(flags.Int("first"))
	if err != nil {
		return xerrors.Errorf("invalid first number: %v", err)
	}

	second, err := number(flags.Int("second"))
	if err != nil {
		return xerrors.Errorf("invalid second number: %v", err)
	}

	cfg, err := readConfig(flags)
	if err != nil {
		return err
	}

	contractCfg, err := cfg.ContractConfig()
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return xerrors.Errorf("failed to create node: %v", err)
	}

	err = n.Start()
	if err != nil {
		n.Close()
		return xerrors.Errorf("failed to start node: %v", err)
	}

	defer n.Close()

	stop, err := serveMetrics(flags.String("metrics"))
	if err != nil {
		return err
	}

	defer stop()

	player, err := loadPlayer(cfg.Folder, flags.String("player"))
	if err != nil {
		return err
	}

	c := n.NewClient(player)

	timeout := flags.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	found, err := c.HasTicket()
	if err != nil {
		return xerrors.Errorf("failed to read ticket: %v", err)
	}

	if !found {
		err = c.BuyTicket(ctx, first, second, contractCfg.Fee())
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "ticket bought for %s wei\n", contractCfg.Fee())
	}

	for i := 0; i < flags.Int("draws"); i++ {
		err = c.StartDraw(ctx)
		if err != nil {
			return err
		}
	}

	err = a.report(ctx, c)
	if err != nil {
		return err
	}

	linger := flags.Duration("linger")
	if linger > 0 && flags.String("metrics") != "" {
		time.Sleep(linger)
	}

	return nil
}

// report prints the plaintexts of the handles of the player.
func (a playAction) report(ctx context.Context, c *client.Client) error {
	first, second, err := c.GetTicket()
	if err != nil {
		return xerrors.Errorf("failed to read ticket: %v", err)
	}

	points, err := c.GetPoints()
	if err != nil {
		return xerrors.Errorf("failed to read points: %v", err)
	}

	handles := []fhe.Handle{first, second, points}

	drawnFirst, drawnSecond, err := c.GetLastDraw()
	if err != nil {
		return xerrors.Errorf("failed to read draw: %v", err)
	}

	drawn := !drawnFirst.IsZero()
	if drawn {
		handles = append(handles, drawnFirst, drawnSecond)
	}

	values, err := c.Decrypt(ctx, handles...)
	if err != nil {
		return xerrors.Errorf("failed to decrypt: %w", err)
	}

	fmt.Fprintf(a.out, "ticket: %d %d\n", values[first], values[second])

	if drawn {
		fmt.Fprintf(a.out, "last draw: %d %d\n", values[drawnFirst], values[drawnSecond])
	}

	fmt.Fprintf(a.out, "points: %d\n", values[points])

	pot, err := c.GetPot()
	if err != nil {
		return xerrors.Errorf("failed to read pot: %v", err)
	}

	fmt.Fprintf(a.out, "pot: %s wei\n", pot)

	return nil
}

// configAction prints the configuration that the node would use.
type configAction struct {
	out io.Writer
}

// Execute runs the action.
func (a configAction) Execute(flags cli.Flags) error {
	cfg, err := readConfig(flags)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return xerrors.Errorf("failed to encode config: %v", err)
	}

	_, err = a.out.Write(data)
	if err != nil {
		return xerrors.Errorf("failed to write config: %v", err)
	}

	return nil
}

// readConfig returns the default configuration of the folder, overridden by
// the YAML file when one is given.
func readConfig(flags cli.Flags) (node.Config, error) {
	folder := flags.String("folder")
	if folder == "" {
		folder = defaultFolder
	}

	cfg := node.DefaultConfig(folder)

	path := flags.String("config")
	if path == "" {
		return cfg, nil
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(folder, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("failed to read config: %v", err)
	}

	err = yaml.UnmarshalStrict(data, &cfg)
	if err != nil {
		return cfg, xerrors.Errorf("failed to decode config: %v", err)
	}

	if cfg.Folder == "" {
		cfg.Folder = folder
	}

	return cfg, nil
}

func loadPlayer(folder, name string) (ed25519.Signer, error) {
	if name == "" || filepath.Base(name) != name {
		return ed25519.Signer{}, xerrors.Errorf("invalid player name '%s'", name)
	}

	path := filepath.Join(folder, playersFolder, name+".key")

	data, err := loader.NewFileLoader(path).LoadOrCreate(loader.GeneratorFunc(func() ([]byte, error) {
		return ed25519.NewSigner().MarshalBinary()
	}))
	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("failed to load player key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("invalid player key: %v", err)
	}

	return signer, nil
}

// serveMetrics serves the collectors of the packages when an address is given
// and returns the function to stop the server.
func serveMetrics(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	reg := prometheus.NewRegistry()

	for _, c := range veilroll.PromCollectors {
		err := reg.Register(c)
		if err != nil {
			return nil, xerrors.Errorf("failed to register collector: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			veilroll.Logger.Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()

	veilroll.Logger.Info().Str("addr", addr).Msg("serving metrics")

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		srv.Shutdown(ctx)
	}

	return stop, nil
}

func number(value int) (uint8, error) {
	if value < 1 || value > lottery.MaxNumber {
		return 0, xerrors.Errorf("%d is not in [1, %d]", value, lottery.MaxNumber)
	}

	return uint8(value), nil
}
