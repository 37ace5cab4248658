package tun

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/veesix-networks/linkshaper/pkg/config"
	"github.com/veesix-networks/linkshaper/pkg/logger"
)

// Configure assigns the device its address, MTU, and admin-up state
// via rtnetlink.
func Configure(cfg config.Tun) error {
	log := logger.Get(logger.Tun)

	link, err := netlink.LinkByName(cfg.Device)
	if err != nil {
		return fmt.Errorf("link %s: %w", cfg.Device, err)
	}

	if cfg.Address != "" {
		addr, err := netlink.ParseAddr(cfg.Address)
		if err != nil {
			return fmt.Errorf("address %s: %w", cfg.Address, err)
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("addr add %s on %s: %w", cfg.Address, cfg.Device, err)
		}
	}

	if cfg.MTU > 0 {
		if err := netlink.LinkSetMTU(link, cfg.MTU); err != nil {
			return fmt.Errorf("set mtu %d on %s: %w", cfg.MTU, cfg.Device, err)
		}
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("link up %s: %w", cfg.Device, err)
	}

	log.Info("device configured", "device", cfg.Device, "address", cfg.Address, "mtu", cfg.MTU)

	if cfg.PeerDevice != "" {
		peer, err := netlink.LinkByName(cfg.PeerDevice)
		if err != nil {
			return fmt.Errorf("link %s: %w", cfg.PeerDevice, err)
		}
		if cfg.PeerAddress != "" {
			addr, err := netlink.ParseAddr(cfg.PeerAddress)
			if err != nil {
				return fmt.Errorf("address %s: %w", cfg.PeerAddress, err)
			}
			if err := netlink.AddrAdd(peer, addr); err != nil {
				return fmt.Errorf("addr add %s on %s: %w", cfg.PeerAddress, cfg.PeerDevice, err)
			}
		}
		if cfg.MTU > 0 {
			if err := netlink.LinkSetMTU(peer, cfg.MTU); err != nil {
				return fmt.Errorf("set mtu %d on %s: %w", cfg.MTU, cfg.PeerDevice, err)
			}
		}
		if err := netlink.LinkSetUp(peer); err != nil {
			return fmt.Errorf("link up %s: %w", cfg.PeerDevice, err)
		}
		log.Info("peer configured", "device", cfg.PeerDevice, "address", cfg.PeerAddress)
	}

	return nil
}

// MoveToNamespace places the device inside a named network namespace,
// so the captive side of the link lives apart from the host stack.
func MoveToNamespace(device, namespace string) error {
	log := logger.Get(logger.Tun)

	ns, err := netns.GetFromName(namespace)
	if err != nil {
		return fmt.Errorf("namespace %s: %w", namespace, err)
	}
	defer ns.Close()

	link, err := netlink.LinkByName(device)
	if err != nil {
		return fmt.Errorf("link %s: %w", device, err)
	}

	if err := netlink.LinkSetNsFd(link, int(ns)); err != nil {
		return fmt.Errorf("move %s to %s: %w", device, namespace, err)
	}

	log.Info("device moved", "device", device, "namespace", namespace)
	return nil
}

// InNamespace runs fn with the calling goroutine switched into the
// named namespace, restoring the original before returning. Namespace
// switches are per-thread, so the goroutine is pinned for the
// duration.
func InNamespace(namespace string, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return fmt.Errorf("current namespace: %w", err)
	}
	defer orig.Close()

	ns, err := netns.GetFromName(namespace)
	if err != nil {
		return fmt.Errorf("namespace %s: %w", namespace, err)
	}
	defer ns.Close()

	if err := netns.Set(ns); err != nil {
		return fmt.Errorf("enter namespace %s: %w", namespace, err)
	}
	defer netns.Set(orig)

	return fn()
}
