// Command cb is a CLI client for the campus board.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	v1 "github.com/and161185/campus-board/internal/api/boardv1"
	"github.com/and161185/campus-board/internal/identity"
	"github.com/and161185/campus-board/internal/issuer"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/tokencache"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "campus-board")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "campus-board")
}

// modTokenPath holds the moderator credential; postingTokenPath the posting token slot.
func modTokenPath() string     { return filepath.Join(cfgDir(), "moderator.json") }
func postingTokenPath() string { return filepath.Join(cfgDir(), "posting-token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(modTokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(modTokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid moderator token (mod-login required)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

// postingCreds sends the posting token as per-RPC metadata.
type postingCreds struct {
	tok    model.PostingToken
	secure bool
}

func (p postingCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return v1.PostingTokenMD(p.tok), nil
}
func (p postingCreds) RequireTransportSecurity() bool { return p.secure }

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// globals carries the parsed global flags.
type globals struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
	issuerURL string
	session   string
	admin     string
}

func dial(g globals, tok *model.PostingToken) (*grpc.ClientConn, v1.BoardClient, error) {
	var creds credentials.TransportCredentials
	if g.plaintext {
		creds = grpcinsecure.NewCredentials()
	} else {
		c, err := loadTLS(g.caPath, g.insecure)
		if err != nil {
			return nil, nil, err
		}
		creds = c
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if tok != nil {
		opts = append(opts, grpc.WithPerRPCCredentials(postingCreds{tok: *tok, secure: !g.plaintext}))
	}
	cc, err := grpc.NewClient(g.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, v1.NewBoardClient(cc), nil
}

// tokenCache builds the posting token cache: issuance with retry, persisted slot.
func tokenCache(g globals) *tokencache.Cache {
	iss := issuer.WithRetry(issuer.New(g.issuerURL, g.session, nil), 3, 500*time.Millisecond)
	return tokencache.New(iss,
		tokencache.WithStore(tokencache.NewFileStore(postingTokenPath())),
		tokencache.WithLogger(zap.NewNop()),
	)
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `cb CLI
Usage:
  cb [-addr HOST:PORT] [-cacert file | -insecure | -plaintext]
     [-issuer URL -session TOKEN] [-admin URL] <cmd> [args]

Commands:
  version
  token                                    show today's posting token (hash only)
  whoami    [-thread <post id>]            your alias, optionally inside a thread
  alias     -key <string>
  post      [-title <t>] -body <text>
  comment   -post <id> -body <text>
  vote      -type post|comment -id <id> -value 1|-1
  flag      -type post|comment -id <id> [-reason <text>]
  rm        -type post|comment -id <id>
  feed      [-sort new|hot] [-limit n]
  thread    -id <post id>
  mod-login -u <username> -p <password>   (saves moderator token)
  mod-rm    -type post|comment -id <id>
  mod-flags [-limit n]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS and the posting token for RPC calls.
func main() {
	// global flags
	var g globals
	flag.StringVar(&g.addr, "addr", envOr("CB_ADDR", "localhost:8443"), "server addr")
	flag.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&g.plaintext, "plaintext", false, "no TLS (local dev server)")
	flag.StringVar(&g.issuerURL, "issuer", envOr("CB_ISSUER_URL", ""), "posting token issuance endpoint")
	flag.StringVar(&g.session, "session", envOr("CB_SESSION", ""), "session credential for the issuance endpoint")
	flag.StringVar(&g.admin, "admin", envOr("CB_ADMIN_URL", "http://localhost:8080"), "admin API base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "version":
		fmt.Printf("cb %s (%s)\n", version, buildDate)
	case "token":
		err = cmdToken(ctx, g)
	case "whoami":
		err = cmdWhoami(ctx, g, args)
	case "alias":
		err = cmdAlias(args)
	case "post":
		err = cmdPost(ctx, g, args)
	case "comment":
		err = cmdComment(ctx, g, args)
	case "vote":
		err = cmdVote(ctx, g, args)
	case "flag":
		err = cmdFlag(ctx, g, args)
	case "rm":
		err = cmdRm(ctx, g, args)
	case "feed":
		err = cmdFeed(ctx, g, args)
	case "thread":
		err = cmdThread(ctx, g, args)
	case "mod-login":
		err = cmdModLogin(ctx, g, args)
	case "mod-rm":
		err = cmdModRm(ctx, g, args)
	case "mod-flags":
		err = cmdModFlags(ctx, g, args)
	default:
		usage()
	}
	if err != nil {
		fail(err)
	}
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func tsString(ts *timestamppb.Timestamp) string {
	if ts == nil {
		return ""
	}
	return ts.AsTime().UTC().Format(time.RFC3339)
}

// expired reports whether the server rejected the posting token as stale.
func expired(err error) bool {
	return status.Code(err) == codes.Unauthenticated
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// myHash returns the hash of the cached posting token.
func myHash(ctx context.Context, g globals) (model.TokenHash, model.PostingToken, error) {
	tok, err := tokenCache(g).Get(ctx)
	if err != nil {
		return "", model.PostingToken{}, err
	}
	h, err := identity.HashToken(tok)
	return h, tok, err
}

