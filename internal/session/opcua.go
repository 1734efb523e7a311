package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/awcullen/opcua/client"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/model"
)

// OPCUASession is an open session on an OPC UA server.
type OPCUASession struct {
	log           *slog.Logger
	ch            *client.Client
	namespaceURIs []string
	maxReferences uint32
}

// Dial resolves the endpoint advertised by the server for the configured
// security policy, then opens a secure channel and an activated session on
// exactly that endpoint.
func Dial(ctx context.Context, log *slog.Logger, cfg config.OPCUAConfig) (*OPCUASession, error) {
	log = log.With(slog.String("endpoint", cfg.Endpoint))

	endpoint, err := selectEndpoint(ctx, log, cfg)
	if err != nil {
		return nil, err
	}

	log.Info("selected endpoint",
		slog.String("endpoint_url", endpoint.EndpointURL),
		slog.String("security_policy", endpoint.SecurityPolicyURI),
		slog.String("security_mode", endpoint.SecurityMode.String()),
		slog.Int("security_level", int(endpoint.SecurityLevel)),
	)

	opts, err := dialOptions(cfg, endpoint)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	ch, err := client.Dial(dialCtx, cfg.Endpoint, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open session on %s", cfg.Endpoint)
	}

	s := &OPCUASession{log: log, ch: ch, maxReferences: cfg.MaxReferencesPerNode}

	if err := s.readNamespaces(ctx); err != nil {
		ch.Abort(ctx)
		return nil, err
	}

	log.Info("session opened",
		slog.String("session_name", cfg.SessionName),
		slog.Any("session_id", ch.SessionID()),
		slog.String("security_policy", ch.SecurityPolicyURI()),
		slog.String("security_mode", ch.SecurityMode().String()),
		slog.Int("namespaces", len(s.namespaceURIs)),
	)

	return s, nil
}

func selectEndpoint(ctx context.Context, log *slog.Logger, cfg config.OPCUAConfig) (ua.EndpointDescription, error) {
	discoveryCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	res, err := client.GetEndpoints(discoveryCtx, &ua.GetEndpointsRequest{
		EndpointURL: cfg.Endpoint,
		ProfileURIs: []string{ua.TransportProfileURIUaTcpTransport},
	})
	if err != nil {
		return ua.EndpointDescription{}, errors.Wrapf(err, "failed to get endpoints from %s", cfg.Endpoint)
	}

	for _, e := range res.Endpoints {
		log.Debug("server endpoint",
			slog.String("security_policy", e.SecurityPolicyURI),
			slog.String("security_mode", e.SecurityMode.String()),
			slog.Int("security_level", int(e.SecurityLevel)),
		)
	}

	endpoint, ok := pickEndpoint(res.Endpoints, securityPolicyURI(cfg.SecurityPolicy), cfg.CertFile != "")
	if !ok {
		return ua.EndpointDescription{}, errors.Errorf("server %s advertises no endpoint with security policy %q", cfg.Endpoint, cfg.SecurityPolicy)
	}

	return endpoint, nil
}

// pickEndpoint returns the supported endpoint with the highest security
// level. An empty policyURI matches any supported policy, or only None when
// the client has no certificate to secure a channel with.
func pickEndpoint(endpoints []ua.EndpointDescription, policyURI string, hasCertificate bool) (ua.EndpointDescription, bool) {
	if policyURI == "" && !hasCertificate {
		policyURI = ua.SecurityPolicyURINone
	}

	best := -1
	for i, e := range endpoints {
		if e.TransportProfileURI != "" && e.TransportProfileURI != ua.TransportProfileURIUaTcpTransport {
			continue
		}
		if policyName(e.SecurityPolicyURI) == "" {
			continue
		}
		if policyURI != "" && e.SecurityPolicyURI != policyURI {
			continue
		}
		if best < 0 || e.SecurityLevel > endpoints[best].SecurityLevel {
			best = i
		}
	}

	if best < 0 {
		return ua.EndpointDescription{}, false
	}
	return endpoints[best], true
}

func dialOptions(cfg config.OPCUAConfig, endpoint ua.EndpointDescription) ([]client.Option, error) {
	if policyName(endpoint.SecurityPolicyURI) == "" {
		return nil, errors.Errorf("unsupported security policy %q", endpoint.SecurityPolicyURI)
	}

	opts := []client.Option{
		client.WithSecurityPolicyURI(endpoint.SecurityPolicyURI, endpoint.SecurityMode),
		client.WithApplicationName(cfg.ApplicationName),
		client.WithSessionName(cfg.SessionName),
		client.WithSessionTimeout(float64(cfg.SessionTimeout.Milliseconds())),
		client.WithTimeoutHint(uint32(cfg.OperationTimeout.Milliseconds())),
		client.WithConnectTimeout(cfg.ConnectTimeout.Milliseconds()),
		client.WithTransportLimits(cfg.MaxBufferSize, cfg.MaxMessageSize, cfg.MaxChunkCount),
	}

	if cfg.Username != "" {
		opts = append(opts, client.WithUserNameIdentity(cfg.Username, cfg.Password))
	}
	if cfg.CertFile != "" {
		opts = append(opts, client.WithClientCertificatePaths(cfg.CertFile, cfg.KeyFile))
	}
	if cfg.TrustedCertsFile != "" {
		opts = append(opts, client.WithTrustedCertificatesPaths(cfg.TrustedCertsFile, ""))
	}
	if !cfg.VerifyServerCert {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if cfg.Trace {
		opts = append(opts, client.WithTrace())
	}

	return opts, nil
}

var securityPolicies = map[string]string{
	"None":                ua.SecurityPolicyURINone,
	"Basic128Rsa15":       ua.SecurityPolicyURIBasic128Rsa15,
	"Basic256":            ua.SecurityPolicyURIBasic256,
	"Basic256Sha256":      ua.SecurityPolicyURIBasic256Sha256,
	"Aes128Sha256RsaOaep": ua.SecurityPolicyURIAes128Sha256RsaOaep,
	"Aes256Sha256RsaPss":  ua.SecurityPolicyURIAes256Sha256RsaPss,
}

// securityPolicyURI maps a configured policy name to its URI. The empty
// name selects any supported policy.
func securityPolicyURI(name string) string {
	return securityPolicies[name]
}

func policyName(uri string) string {
	for name, u := range securityPolicies {
		if u == uri {
			return name
		}
	}
	return ""
}

// SecurityPolicyURI is the policy the session's channel was opened with.
func (s *OPCUASession) SecurityPolicyURI() string {
	return s.ch.SecurityPolicyURI()
}

// NamespaceURIs is the server namespace array read when the session opened.
func (s *OPCUASession) NamespaceURIs() []string {
	return s.namespaceURIs
}

func (s *OPCUASession) readNamespaces(ctx context.Context) error {
	res, err := s.ch.Read(ctx, &ua.ReadRequest{
		NodesToRead: []ua.ReadValueID{
			{NodeID: ua.VariableIDServerNamespaceArray, AttributeID: ua.AttributeIDValue},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to read namespace array")
	}

	if len(res.Results) != 1 {
		s.log.Warn("namespace array not returned, references with namespace URIs will be skipped",
			slog.Int("results", len(res.Results)))
		return nil
	}

	dv := res.Results[0]
	if !dv.StatusCode.IsGood() {
		s.log.Warn("namespace array not readable, references with namespace URIs will be skipped",
			slog.String("status", model.StatusCode(dv.StatusCode).String()))
		return nil
	}

	uris, ok := dv.Value.([]string)
	if !ok {
		s.log.Warn("namespace array has unexpected type, references with namespace URIs will be skipped",
			slog.String("type", fmt.Sprintf("%T", dv.Value)))
		return nil
	}

	s.namespaceURIs = uris
	return nil
}

// Browse returns the hierarchical forward references of nodeID, following
// continuation points until the server has returned them all.
func (s *OPCUASession) Browse(ctx context.Context, nodeID string) ([]model.DataPoint, error) {
	id, err := parseNodeID(nodeID)
	if err != nil {
		return nil, err
	}

	res, err := s.ch.Browse(ctx, &ua.BrowseRequest{
		RequestedMaxReferencesPerNode: s.maxReferences,
		NodesToBrowse: []ua.BrowseDescription{
			{
				NodeID:          id,
				BrowseDirection: ua.BrowseDirectionForward,
				ReferenceTypeID: ua.ReferenceTypeIDHierarchicalReferences,
				IncludeSubtypes: true,
				NodeClassMask:   0,
				ResultMask:      uint32(ua.BrowseResultMaskAll),
			},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to browse %s", nodeID)
	}
	if len(res.Results) != 1 {
		return nil, errors.Errorf("browse of %s returned %d results", nodeID, len(res.Results))
	}

	result := res.Results[0]
	var points []model.DataPoint
	for {
		if !result.StatusCode.IsGood() {
			return nil, errors.Wrapf(result.StatusCode, "failed to browse %s", nodeID)
		}

		for _, ref := range result.References {
			point, ok := s.dataPoint(ref)
			if !ok {
				s.log.Warn("reference namespace not in namespace array, skipping",
					slog.String("parent", nodeID),
					slog.String("namespace_uri", ref.NodeID.NamespaceURI),
					slog.String("browse_name", ref.BrowseName.Name),
				)
				continue
			}
			points = append(points, point)
		}

		if len(result.ContinuationPoint) == 0 {
			break
		}

		next, err := s.ch.BrowseNext(ctx, &ua.BrowseNextRequest{
			ContinuationPoints: []ua.ByteString{result.ContinuationPoint},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to continue browse of %s", nodeID)
		}
		if len(next.Results) != 1 {
			return nil, errors.Errorf("browse next of %s returned %d results", nodeID, len(next.Results))
		}
		result = next.Results[0]
	}

	return points, nil
}

func parseNodeID(s string) (ua.NodeID, error) {
	id := ua.ParseNodeID(s)
	if id == nil {
		return nil, errors.Errorf("invalid node id %q", s)
	}
	return id, nil
}

// dataPoint converts a reference to a point with a local node id. It fails
// when the reference names a namespace URI the server did not list.
func (s *OPCUASession) dataPoint(ref ua.ReferenceDescription) (model.DataPoint, bool) {
	id := ua.ToNodeID(ref.NodeID, s.namespaceURIs)
	if id == nil {
		return model.DataPoint{}, false
	}

	name := ref.DisplayName.Text
	if name == "" {
		name = ref.BrowseName.Name
	}
	if name == "" {
		name = "Unknown"
	}

	return model.DataPoint{
		NodeID:      fmt.Sprint(id),
		DisplayName: name,
		NodeClass:   model.NodeClass(ref.NodeClass),
	}, true
}

// Read issues one ReadRequest for the Value attribute of every node.
func (s *OPCUASession) Read(ctx context.Context, nodeIDs []string) ([]model.Result, error) {
	req := &ua.ReadRequest{
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead:        make([]ua.ReadValueID, 0, len(nodeIDs)),
	}
	for _, nodeID := range nodeIDs {
		id, err := parseNodeID(nodeID)
		if err != nil {
			return nil, err
		}
		req.NodesToRead = append(req.NodesToRead, ua.ReadValueID{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
		})
	}

	res, err := s.ch.Read(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %d nodes", len(nodeIDs))
	}

	results := make([]model.Result, 0, len(res.Results))
	for _, dv := range res.Results {
		results = append(results, model.Result{
			Value:  model.NewValue(dv.Value),
			Status: model.StatusCode(dv.StatusCode),
		})
	}

	return results, nil
}

// Close closes the session and channel, aborting the channel if the close
// handshake fails.
func (s *OPCUASession) Close(ctx context.Context) error {
	if err := s.ch.Close(ctx); err != nil {
		s.log.Warn("failed to close session, aborting channel", sl.Err(err))
		if abortErr := s.ch.Abort(ctx); abortErr != nil {
			return errors.Wrap(abortErr, "failed to abort channel")
		}
	}
	return nil
}
