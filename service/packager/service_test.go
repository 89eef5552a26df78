package packager

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scriptgate/scriptgate/model"
	"github.com/scriptgate/scriptgate/service/signer"
)

func newTestSigner(t *testing.T) signer.Service {
	svc, err := signer.New(context.Background(), &signer.Config{Environment: "test"})
	assert.NoError(t, err)
	return svc
}

func TestPackage(t *testing.T) {
	svc := New(newTestSigner(t))

	pkg, err := svc.Package(&Request{
		Script:    "systemctl restart nginx",
		Manifest:  &model.Manifest{TimeoutSec: 30},
		SessionID: "sess-1",
		DeviceID:  "dev-1",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, pkg.ID)
	assert.NotEmpty(t, pkg.Checksum)
	assert.NotEmpty(t, pkg.Signature)
	assert.Equal(t, model.StatusQueued, pkg.Status)
	assert.NotNil(t, pkg.CreatedAt)
	assert.Equal(t, model.RiskLow, pkg.RiskLevel)

	script, err := base64.StdEncoding.DecodeString(pkg.Script)
	assert.NoError(t, err)
	assert.Equal(t, "systemctl restart nginx", string(script))

	assert.True(t, svc.ValidateChecksum(pkg))
	assert.True(t, svc.VerifyPackage(pkg))
}

func TestPackageEmptyScript(t *testing.T) {
	svc := New(newTestSigner(t))
	_, err := svc.Package(&Request{Script: ""})
	assert.ErrorIs(t, err, ErrEmptyScript)
	_, err = svc.Package(nil)
	assert.ErrorIs(t, err, ErrEmptyScript)
}

func TestPackageRiskClassification(t *testing.T) {
	svc := New(nil)
	pkg, err := svc.Package(&Request{
		Script:   "modprobe foo",
		Manifest: &model.Manifest{RequiredCapabilities: []string{"kernel"}},
	})
	assert.NoError(t, err)
	assert.Equal(t, model.RiskHigh, pkg.RiskLevel)
	assert.Empty(t, pkg.Signature)
}

func TestValidateChecksumDetectsTampering(t *testing.T) {
	svc := New(newTestSigner(t))
	pkg, err := svc.Package(&Request{Script: "echo hi", Manifest: &model.Manifest{}})
	assert.NoError(t, err)

	tamperedScript := *pkg
	tamperedScript.Script = base64.StdEncoding.EncodeToString([]byte("echo pwned"))
	assert.False(t, svc.ValidateChecksum(&tamperedScript))

	tamperedManifest := *pkg
	manifest := *pkg.Manifest
	manifest.TimeoutSec = 9999
	tamperedManifest.Manifest = &manifest
	assert.False(t, svc.ValidateChecksum(&tamperedManifest))

	notBase64 := *pkg
	notBase64.Script = "%%%not-base64%%%"
	assert.False(t, svc.ValidateChecksum(&notBase64))
}

func TestVerifyPackageRejectsForgedSignature(t *testing.T) {
	svc := New(newTestSigner(t))
	pkg, err := svc.Package(&Request{Script: "echo hi"})
	assert.NoError(t, err)

	forged := *pkg
	forged.Signature = base64.StdEncoding.EncodeToString(make([]byte, signer.SignatureSize))
	assert.False(t, svc.VerifyPackage(&forged))

	unsigned := *pkg
	unsigned.Signature = ""
	assert.False(t, svc.VerifyPackage(&unsigned))
}

func TestProcessResult(t *testing.T) {
	svc := New(nil)

	assert.Nil(t, svc.ProcessResult(nil))

	result := svc.ProcessResult(&model.ExecutionResult{ExitCode: 0, Stdout: "ok"})
	assert.NotNil(t, result.CompletedAt)
	assert.Empty(t, result.Error)

	result = svc.ProcessResult(&model.ExecutionResult{ExitCode: 2})
	assert.Equal(t, "script exited with code 2", result.Error)

	result = svc.ProcessResult(&model.ExecutionResult{ExitCode: 1, Error: "disk full"})
	assert.Equal(t, "disk full", result.Error)
}
