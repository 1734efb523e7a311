package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/awcullen/opcua/client"
	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// startServer runs an in-process OPC UA server with the standard address
// space and returns its endpoint URL. The server is closed on cleanup.
func startServer(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, writeCertificate("testserver", certFile, keyFile))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	endpointURL := fmt.Sprintf("opc.tcp://127.0.0.1:%d", port)

	srv, err := server.New(
		ua.ApplicationDescription{
			ApplicationURI:  "urn:127.0.0.1:testserver",
			ProductURI:      "http://github.com/speedwagon-io/opcsnapshot",
			ApplicationName: ua.LocalizedText{Text: "testserver", Locale: "en"},
			ApplicationType: ua.ApplicationTypeServer,
			DiscoveryURLs:   []string{endpointURL},
		},
		certFile,
		keyFile,
		endpointURL,
		server.WithBuildInfo(ua.BuildInfo{
			ProductURI:      "http://github.com/speedwagon-io/opcsnapshot",
			ProductName:     "testserver",
			SoftwareVersion: "1.0.0",
		}),
		server.WithAnonymousIdentity(true),
		server.WithSecurityPolicyNone(true),
		server.WithInsecureSkipVerify(),
	)
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() {
		served <- srv.ListenAndServe()
	}()
	t.Cleanup(func() {
		srv.Close()
		assert.Equal(t, ua.BadServerHalted, <-served)
	})

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := client.FindServers(ctx, &ua.FindServersRequest{EndpointURL: endpointURL})
		return err == nil
	}, 10*time.Second, 100*time.Millisecond)

	return endpointURL
}

func writeCertificate(appName, certFile, keyFile string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}

	applicationURI, _ := url.Parse("urn:127.0.0.1:" + appName)
	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: appName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		URIs:                  []*url.URL{applicationURI},
	}

	raw, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: raw}), 0o600); err != nil {
		return err
	}
	return os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600)
}

func serverConfig(endpointURL string) config.OPCUAConfig {
	cfg := baseConfig()
	cfg.Endpoint = endpointURL
	cfg.SecurityPolicy = ""
	return cfg
}

func TestOPCUASession_AgainstServer(t *testing.T) {
	endpointURL := startServer(t)
	ctx := context.Background()

	sess, err := Dial(ctx, sl.Discard(), serverConfig(endpointURL))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, sess.Close(ctx))
	}()

	t.Run("channel uses the picked endpoint", func(t *testing.T) {
		// no client certificate, so the only usable endpoint is None even
		// though the server advertises secure endpoints with higher levels
		assert.Equal(t, ua.SecurityPolicyURINone, sess.SecurityPolicyURI())
	})

	t.Run("namespace array", func(t *testing.T) {
		uris := sess.NamespaceURIs()
		require.NotEmpty(t, uris)
		assert.Equal(t, "http://opcfoundation.org/UA/", uris[0])
	})

	t.Run("browse objects folder", func(t *testing.T) {
		points, err := sess.Browse(ctx, "i=85")
		require.NoError(t, err)

		var found bool
		for _, p := range points {
			if p.NodeID == "i=2253" {
				found = true
				assert.Equal(t, "Server", p.DisplayName)
				assert.Equal(t, model.NodeClassObject, p.NodeClass)
			}
		}
		assert.True(t, found, "Server object not among children of the Objects folder")
	})

	t.Run("browse unknown node", func(t *testing.T) {
		_, err := sess.Browse(ctx, "ns=0;i=999999")
		assert.Error(t, err)
	})

	t.Run("batch read keeps request order", func(t *testing.T) {
		results, err := sess.Read(ctx, []string{"i=2267", "i=999999", "i=2994"})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.True(t, results[0].Status.IsGood())
		assert.Equal(t, "255", results[0].Value.String())
		assert.Equal(t, "Byte", results[0].Value.TypeName())

		assert.True(t, results[1].Status.IsBad())

		assert.True(t, results[2].Status.IsGood())
		assert.Equal(t, "false", results[2].Value.String())
		assert.Equal(t, "Boolean", results[2].Value.TypeName())
	})

	t.Run("read rejects invalid node id", func(t *testing.T) {
		_, err := sess.Read(ctx, []string{"i=2267", "bogus"})
		assert.Error(t, err)
	})
}

func TestOPCUASession_BrowseFollowsContinuationPoints(t *testing.T) {
	endpointURL := startServer(t)
	ctx := context.Background()

	whole, err := Dial(ctx, sl.Discard(), serverConfig(endpointURL))
	require.NoError(t, err)
	defer whole.Close(ctx)

	cfg := serverConfig(endpointURL)
	cfg.MaxReferencesPerNode = 2
	paged, err := Dial(ctx, sl.Discard(), cfg)
	require.NoError(t, err)
	defer paged.Close(ctx)

	want, err := whole.Browse(ctx, "i=2253")
	require.NoError(t, err)
	require.Greater(t, len(want), 2)

	got, err := paged.Browse(ctx, "i=2253")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
