// Package remote copies the database to another host over SFTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"netspeedlogger/config"
)

// ErrNotConfigured is returned by Push when no host is set.
var ErrNotConfigured = errors.New("sftp host is not configured")

// ClientConfig builds the ssh configuration: public key authentication
// with the key at cfg.KeyPath, host keys checked against cfg.KnownHosts
// when set.
func ClientConfig(cfg config.SFTP, log *zap.Logger) (*ssh.ClientConfig, error) {
	if log == nil {
		log = zap.NewNop()
	}

	keyByte, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := ssh.ParsePrivateKey(keyByte)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		hostKey, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	} else {
		log.Warn("host key verification disabled; set sftp.known_hosts", zap.String("host", cfg.Host))
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(key)},
		HostKeyCallback: hostKey,
	}, nil
}

// Push uploads localPath into cfg.RemoteDir on cfg.Host and returns the
// remote path.
func Push(ctx context.Context, cfg config.SFTP, localPath string, log *zap.Logger) (string, error) {
	if cfg.Host == "" {
		return "", ErrNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}

	conf, err := ClientConfig(cfg, log)
	if err != nil {
		return "", err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Host)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", cfg.Host, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.Host, conf)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", cfg.Host, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("open sftp session: %w", err)
	}
	defer sftpClient.Close()

	dst, err := Upload(sftpClient, localPath, cfg.RemoteDir)
	if err != nil {
		return "", err
	}
	log.Info("database pushed", zap.String("host", cfg.Host), zap.String("remote_path", dst))
	return dst, nil
}

// Upload copies localPath into remoteDir, creating the directory if
// needed. An empty remoteDir means the session's working directory.
func Upload(client *sftp.Client, localPath, remoteDir string) (string, error) {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer srcFile.Close()

	dst := filepath.Base(localPath)
	if remoteDir != "" {
		if err := client.MkdirAll(remoteDir); err != nil {
			return "", fmt.Errorf("create remote directory %s: %w", remoteDir, err)
		}
		dst = path.Join(remoteDir, dst)
	}

	dstFile, err := client.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create remote file %s: %w", dst, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return "", fmt.Errorf("copy to %s: %w", dst, err)
	}
	// the server may only report a failed write on close
	if err := dstFile.Close(); err != nil {
		return "", fmt.Errorf("close remote file %s: %w", dst, err)
	}
	return dst, nil
}
