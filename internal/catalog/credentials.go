package catalog

import (
	"context"
	"fmt"

	"github.com/amondawa/amondawa/internal/amdwconfig"
	"github.com/amondawa/amondawa/internal/amdwerr"
	"github.com/amondawa/amondawa/internal/auth"
	"github.com/amondawa/amondawa/internal/kvtable"
)

const (
	accessKeyIDAttr = "access_key_id"
	secretKeyAttr   = "secret_access_key"
	stateAttr       = "state"
	permissionsAttr = "permissions"
)

// Credentials is the access-key catalog table, keyed by access_key_id
// with no range key, grounded on auth.py/server_auth.py's
// amdw_credentials lookup (SPEC_FULL §4.16).
type Credentials struct {
	store kvtable.Table
	table string
}

// NewCredentials wraps store's credentials table.
func NewCredentials(store kvtable.Table, cfg *amdwconfig.Config) *Credentials {
	return &Credentials{store: store, table: cfg.TableName("credentials")}
}

// BootstrapCredentials creates the credentials table; like the other
// catalog tables it's small and rarely written, so it gets minimal
// provisioned throughput.
func BootstrapCredentials(ctx context.Context, store kvtable.Table, cfg *amdwconfig.Config) error {
	low := kvtable.Throughput{Read: 1, Write: 1}
	return store.Create(ctx, cfg.TableName("credentials"), &kvtable.KeySchema{Name: accessKeyIDAttr, Type: kvtable.AttrString}, nil, low)
}

// Put stores or replaces one credential record.
func (c *Credentials) Put(ctx context.Context, cred auth.Credential) error {
	if err := c.store.PutItem(ctx, c.table, kvtable.Item{
		accessKeyIDAttr: cred.AccessKeyID,
		secretKeyAttr:   cred.SecretAccessKey,
		stateAttr:       cred.State,
		permissionsAttr: joinPermissions(cred.Permissions),
	}, true); err != nil {
		return amdwerr.New(amdwerr.BackendTransport, "catalog.Credentials.Put", err)
	}
	return nil
}

// GetCredential implements auth.CredentialStore, looking up one record by
// access key id.
func (c *Credentials) GetCredential(accessKeyID string) (auth.Credential, bool, error) {
	it, err := c.store.Query(context.Background(), c.table, kvtable.QueryInput{
		HashKeyName: accessKeyIDAttr,
		HashEq:      accessKeyID,
		Consistent:  true,
	})
	if err != nil {
		return auth.Credential{}, false, amdwerr.New(amdwerr.BackendTransport, "catalog.Credentials.GetCredential", err)
	}
	defer it.Close()

	item, ok, err := it.Next()
	if err != nil {
		return auth.Credential{}, false, amdwerr.New(amdwerr.BackendTransport, "catalog.Credentials.GetCredential", err)
	}
	if !ok {
		return auth.Credential{}, false, nil
	}

	return auth.Credential{
		AccessKeyID:     fmt.Sprint(item[accessKeyIDAttr]),
		SecretAccessKey: fmt.Sprint(item[secretKeyAttr]),
		State:           fmt.Sprint(item[stateAttr]),
		Permissions:     splitPermissions(fmt.Sprint(item[permissionsAttr])),
	}, true, nil
}

func joinPermissions(perms []string) string {
	out := ""
	for i, p := range perms {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func splitPermissions(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
