// Package scan discovers camera-class devices on the local networks by
// sweeping every addressable host of every usable interface.
package scan

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/platform/axis"
)

// Prober classifies a single address. Satisfied by *axis.Client.
type Prober interface {
	Identify(ctx context.Context, cam *axis.Camera) error
}

// Progress reports sweep advancement. Total is the exact number of host
// addresses the sweep will touch, computed from the interface masks.
type Progress struct {
	Done  int
	Total int
	Found int
}

// Scanner sweeps local subnets for devices that answer the camera protocol.
type Scanner struct {
	prober      Prober
	username    string
	password    string
	port        int
	concurrency int
	probeWait   time.Duration
	log         logr.Logger

	// subnets and alive are swappable for tests.
	subnets func(logr.Logger) ([]*net.IPNet, error)
	alive   func(ctx context.Context, address string, port int) bool

	mu     sync.Mutex
	manual []*axis.Camera
}

// New builds a Scanner from the device section of the deployment config.
func New(prober Prober, cfg *config.Devices, timeouts *config.Timeouts, log logr.Logger) *Scanner {
	concurrency := cfg.ScanConcurrency
	if concurrency <= 0 {
		concurrency = 20
	}
	s := &Scanner{
		prober:      prober,
		username:    cfg.Username,
		password:    cfg.Password,
		port:        cfg.Port,
		concurrency: concurrency,
		probeWait:   timeouts.Probe,
		log:         log,
		subnets:     localSubnets,
	}
	s.alive = s.tcpAlive
	for _, addr := range cfg.Manual {
		s.AddManual(addr, cfg.Port)
	}
	return s
}

// AddManual registers a device by address, bypassing discovery. Manual
// entries are probed like scanned ones so classification stays uniform.
func (s *Scanner) AddManual(address string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if port == 0 {
		port = s.port
	}
	s.manual = append(s.manual, &axis.Camera{
		Address:  address,
		Port:     port,
		Username: s.username,
		Password: s.password,
	})
}

// Run sweeps all usable interfaces plus manual entries and returns the
// devices classified as cameras. onProgress, when non-nil, is called after
// every probed host.
func (s *Scanner) Run(ctx context.Context, onProgress func(Progress)) ([]*axis.Camera, error) {
	hosts, err := s.targetHosts()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	targets := make([]*axis.Camera, 0, len(hosts)+len(s.manual))
	for _, h := range hosts {
		targets = append(targets, &axis.Camera{
			Address:  h,
			Port:     s.port,
			Username: s.username,
			Password: s.password,
		})
	}
	targets = append(targets, s.manual...)
	s.mu.Unlock()

	if len(targets) == 0 {
		return nil, fmt.Errorf("no addressable hosts found on any interface and no manual devices configured")
	}

	s.log.Info("starting device sweep", "hosts", len(targets), "concurrency", s.concurrency)

	sem := semaphore.NewWeighted(int64(s.concurrency))
	// Cap probe launches so the sweep never saturates the local network
	// even when probes return instantly.
	limiter := rate.NewLimiter(rate.Limit(s.concurrency*10), s.concurrency)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		done    int
		cameras []*axis.Camera
	)

	for _, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(cam *axis.Camera) {
			defer wg.Done()
			defer sem.Release(1)
			s.probe(ctx, cam)

			mu.Lock()
			done++
			if cam.Class == axis.ClassCamera {
				cameras = append(cameras, cam)
			}
			p := Progress{Done: done, Total: len(targets), Found: len(cameras)}
			mu.Unlock()
			if onProgress != nil {
				onProgress(p)
			}
		}(target)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return cameras, ctx.Err()
	}
	s.log.Info("device sweep complete", "probed", done, "cameras", len(cameras))
	return cameras, nil
}

// probe runs liveness then protocol classification for one host.
func (s *Scanner) probe(ctx context.Context, cam *axis.Camera) {
	if !s.alive(ctx, cam.Address, cam.Port) {
		cam.Reachable = false
		cam.Class = axis.ClassUnknown
		return
	}
	if err := s.prober.Identify(ctx, cam); err != nil {
		s.log.V(1).Info("probe aborted", "address", cam.Address, "error", err.Error())
	}
}

// tcpAlive checks whether anything is listening on the device port at all,
// so the HTTP probe only runs against hosts that exist.
func (s *Scanner) tcpAlive(ctx context.Context, address string, port int) bool {
	d := net.Dialer{Timeout: s.probeWait}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(address, fmt.Sprintf("%d", port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// targetHosts enumerates every addressable IPv4 host on every up,
// non-loopback interface. Network and broadcast addresses are excluded.
func (s *Scanner) targetHosts() ([]string, error) {
	subnets, err := s.subnets(s.log)
	if err != nil {
		return nil, err
	}

	var hosts []string
	for _, ipNet := range subnets {
		subnet := HostsInSubnet(ipNet)
		s.log.V(1).Info("sweeping subnet", "subnet", ipNet.String(), "hosts", len(subnet))
		hosts = append(hosts, subnet...)
	}
	return hosts, nil
}

// localSubnets lists the IPv4 networks of every up, non-loopback interface.
func localSubnets(log logr.Logger) ([]*net.IPNet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate network interfaces: %w", err)
	}

	var subnets []*net.IPNet
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			log.V(1).Info("skipping interface", "interface", iface.Name, "error", err.Error())
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			subnets = append(subnets, ipNet)
		}
	}
	return subnets, nil
}

// HostsInSubnet expands an IPv4 network into its host addresses, excluding
// the network and broadcast addresses. Subnets wider than /16 are refused:
// sweeping 65k+ hosts is a misconfiguration, not a discovery strategy.
func HostsInSubnet(ipNet *net.IPNet) []string {
	ip := ipNet.IP.To4()
	if ip == nil {
		return nil
	}
	ones, bits := ipNet.Mask.Size()
	if bits != 32 || ones < 16 {
		return nil
	}
	// /31 and /32 have no usable host range in this scheme.
	if ones >= 31 {
		return nil
	}

	network := binary.BigEndian.Uint32(ip.Mask(ipNet.Mask))
	total := uint32(1) << (bits - ones)

	hosts := make([]string, 0, total-2)
	for i := uint32(1); i < total-1; i++ {
		host := make(net.IP, 4)
		binary.BigEndian.PutUint32(host, network+i)
		hosts = append(hosts, host.String())
	}
	return hosts
}
