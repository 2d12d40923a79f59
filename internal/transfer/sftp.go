// Package transfer copies result files to the remote host over SFTP.
// Authentication is key-based only; passwords never pass through here.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/labops/resulttx/internal/core"
)

// Client performs remote copies to one host. A fresh SSH connection is
// established per transfer; result files arrive minutes apart, so holding
// a connection open buys nothing and hides network failures.
type Client struct {
	Host        string
	User        string
	KeyFile     string
	RemoteBase  string
	MkdirRemote bool
	Timeout     time.Duration
}

func New(host, user, keyFile, remoteBase string, mkdirRemote bool) *Client {
	return &Client{
		Host:        host,
		User:        user,
		KeyFile:     keyFile,
		RemoteBase:  remoteBase,
		MkdirRemote: mkdirRemote,
		Timeout:     30 * time.Second,
	}
}

// Transfer copies localPath to RemoteBase/subfolder/filename. The file is
// written under a temporary name and renamed into place, so the remote
// side never sees a half-written file under the final name.
func (c *Client) Transfer(ctx context.Context, localPath, subfolder string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("%w: sftp session: %v", core.ErrRemoteIOFailure, err)
	}
	defer client.Close()

	dir := path.Join(c.RemoteBase, subfolder)
	if _, err := client.Stat(dir); err != nil {
		if !c.MkdirRemote {
			return fmt.Errorf("%w: remote folder %s does not exist", core.ErrRemoteIOFailure, dir)
		}
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", core.ErrRemoteIOFailure, dir, err)
		}
	}

	name := filepath.Base(localPath)
	tmp := path.Join(dir, "."+name+".part")
	final := path.Join(dir, name)

	if err := c.upload(localPath, tmp, client); err != nil {
		client.Remove(tmp)
		return err
	}

	if err := client.PosixRename(tmp, final); err != nil {
		var st *sftp.StatusError
		if !errors.As(err, &st) || st.FxCode() != sftp.ErrSSHFxOpUnsupported {
			client.Remove(tmp)
			return fmt.Errorf("%w: rename %s: %v", core.ErrRemoteIOFailure, final, err)
		}
		// Server lacks the posix-rename extension. Plain rename refuses
		// to overwrite, so clear a copy left by an earlier delivery; the
		// temp file holds complete replacement content at this point.
		client.Remove(final)
		if err := client.Rename(tmp, final); err != nil {
			client.Remove(tmp)
			return fmt.Errorf("%w: rename %s: %v", core.ErrRemoteIOFailure, final, err)
		}
	}
	return nil
}

func (c *Client) upload(localPath, remotePath string, client *sftp.Client) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", core.ErrLocalIOFailure, localPath, err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", core.ErrRemoteIOFailure, remotePath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("%w: write %s: %v", core.ErrRemoteIOFailure, remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", core.ErrRemoteIOFailure, remotePath, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	key, err := os.ReadFile(c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read key %s: %v", core.ErrAuthFailure, c.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: parse key %s: %v", core.ErrAuthFailure, c.KeyFile, err)
	}

	cfg := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: c.hostKeyCallback(),
		Timeout:         c.Timeout,
	}

	addr := c.Host
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	d := net.Dialer{Timeout: c.Timeout}
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", core.ErrNetworkFailure, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "handshake failed: ssh:") {
			return nil, fmt.Errorf("%w: add user %s to authorized_keys on %s: %v",
				core.ErrAuthFailure, c.User, c.Host, err)
		}
		return nil, fmt.Errorf("%w: handshake with %s: %v", core.ErrNetworkFailure, addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// hostKeyCallback uses the system known_hosts file when one exists. A host
// missing from known_hosts fails the handshake; add it with ssh-keyscan.
func (c *Client) hostKeyCallback() ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		khPath := filepath.Join(home, ".ssh", "known_hosts")
		if cb, err := knownhosts.New(khPath); err == nil {
			return cb
		}
	}
	return ssh.InsecureIgnoreHostKey()
}
