// Package packager turns a raw script and its manifest into an immutable,
// checksummed and signed package, and verifies packages on retrieval.
package packager

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/scriptgate/scriptgate/internal/clock"
	"github.com/scriptgate/scriptgate/internal/idgen"
	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/signer"
)

// ErrEmptyScript rejects packaging of an empty script body.
var ErrEmptyScript = errors.New("packager: script is empty")

// Service packages and verifies scripts. Packaging is atomic from the
// caller's perspective – any error leaves no partial package behind.
type Service struct {
	signer signer.Service
}

// New creates a packager backed by the given signer. A nil signer produces
// unsigned packages (checksum only); the dispatch service still validates the
// checksum on every fetch.
func New(signer signer.Service) *Service {
	return &Service{signer: signer}
}

// Request carries the packaging inputs.
type Request struct {
	Script     string
	Manifest   *model.Manifest
	SessionID  string
	DeviceID   string
	ApprovalID string
}

// Package computes the content checksum over script and canonical manifest,
// signs it and returns the immutable package.
func (s *Service) Package(request *Request) (*model.ScriptPackage, error) {
	if request == nil || request.Script == "" {
		return nil, ErrEmptyScript
	}
	manifest := request.Manifest
	if manifest == nil {
		manifest = &model.Manifest{}
	}
	manifest.Normalize()

	checksum, err := contentChecksum(request.Script, manifest)
	if err != nil {
		return nil, err
	}
	pkg := &model.ScriptPackage{
		ID:         idgen.New(),
		SessionID:  request.SessionID,
		DeviceID:   request.DeviceID,
		Script:     base64.StdEncoding.EncodeToString([]byte(request.Script)),
		Manifest:   manifest,
		Checksum:   checksum,
		RiskLevel:  model.ClassifyRisk(manifest),
		ApprovalID: request.ApprovalID,
		CreatedAt:  model.NewISOTime(clock.Now()),
		Status:     model.StatusQueued,
	}
	if s.signer != nil {
		signature, err := s.signer.Sign([]byte(checksum))
		if err != nil {
			return nil, fmt.Errorf("packager: failed to sign package: %w", err)
		}
		pkg.Signature = base64.StdEncoding.EncodeToString(signature)
	}
	return pkg, nil
}

// ValidateChecksum recomputes the content hash and compares it against the
// stored value. Any decoding problem counts as a mismatch.
func (s *Service) ValidateChecksum(pkg *model.ScriptPackage) bool {
	if pkg == nil || pkg.Checksum == "" {
		return false
	}
	script, err := base64.StdEncoding.DecodeString(pkg.Script)
	if err != nil {
		return false
	}
	checksum, err := contentChecksum(string(script), pkg.Manifest)
	if err != nil {
		return false
	}
	return checksum == pkg.Checksum
}

// VerifyPackage checks the signature over the package checksum.
func (s *Service) VerifyPackage(pkg *model.ScriptPackage) bool {
	if pkg == nil || pkg.Signature == "" || s.signer == nil {
		return false
	}
	signature, err := base64.StdEncoding.DecodeString(pkg.Signature)
	if err != nil {
		return false
	}
	return s.signer.Verify(signature, []byte(pkg.Checksum))
}

// ProcessResult normalises a device-reported result: a missing completion
// time is stamped now, and a non-zero exit code without an error message gets
// one so downstream formatting never sees a bare failure.
func (s *Service) ProcessResult(result *model.ExecutionResult) *model.ExecutionResult {
	if result == nil {
		return nil
	}
	if result.CompletedAt == nil {
		result.CompletedAt = model.NewISOTime(clock.Now())
	}
	if result.ExitCode != 0 && result.Error == "" {
		result.Error = fmt.Sprintf("script exited with code %d", result.ExitCode)
	}
	return result
}

func contentChecksum(script string, manifest *model.Manifest) (string, error) {
	if manifest == nil {
		manifest = &model.Manifest{}
	}
	canonical, err := manifest.Canonical()
	if err != nil {
		return "", fmt.Errorf("packager: failed to canonicalise manifest: %w", err)
	}
	digest := sha256.New()
	digest.Write([]byte(script))
	digest.Write([]byte{0})
	digest.Write(canonical)
	return hex.EncodeToString(digest.Sum(nil)), nil
}
