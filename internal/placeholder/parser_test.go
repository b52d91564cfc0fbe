package placeholder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeysClassifiesPrefixAndAccounts(t *testing.T) {
	req := ParseKeys([]string{
		"{{Sum3_A10_CY}}",
		"{{debitsum2_b5_PY}}",
		"{{BegSum1_C_CY}}",
		"{{A999_CY}}",
		"{{B539_debit_CY}}",
		"{{A100_Jan1_PY}}",
		"{{description_A100_CY}}",
		"{{MONTH}}",
		"{{ --- }}",
		"Sum3_A10_CY",
	})

	require.Equal(t, []int{1, 2, 3}, req.Levels())
	require.Contains(t, req.Prefixes[3], "A10")
	require.Contains(t, req.Prefixes[2], "B5")
	require.Contains(t, req.Prefixes[1], "C")

	for _, acc := range []string{"A999", "B539", "A100", "MONTH"} {
		require.True(t, req.HasAccount(acc), acc)
	}
	require.Len(t, req.Accounts, 4)
	require.Empty(t, req.Rejected)
}

func TestParseKeysRequiresDescribedAccount(t *testing.T) {
	req := ParseKeys([]string{"{{description_B12_CY}}"})
	require.True(t, req.HasAccount("B12"))
	require.False(t, req.HasAccount("DESCRIPTION"))
	require.Len(t, req.Accounts, 1)
	require.Len(t, req.References, 1)
}

func TestClassifyForms(t *testing.T) {
	cases := []struct {
		key       string
		kind      RefKind
		form      Form
		account   string
		canonical string
	}{
		{"A100_CY", RefAccount, FormEnding, "A100", "{{A100_CY}}"},
		{"a100_py", RefAccount, FormEnding, "A100", "{{A100_PY}}"},
		{"B539_debit_CY", RefAccount, FormDebit, "B539", "{{B539_debit_CY}}"},
		{"B539_CREDIT_PY", RefAccount, FormCredit, "B539", "{{B539_credit_PY}}"},
		{"A100_Jan1_CY", RefAccount, FormBeginning, "A100", "{{A100_Jan1_CY}}"},
		{"description_A100_CY", RefAccount, FormDescription, "DESCRIPTION", "{{description_A100_CY}}"},
		{"REPORT_DATE", RefAccount, FormOther, "REPORT", "{{REPORT_DATE}}"},
		{"sum3_a10_cy", RefPrefix, FormOther, "", "{{Sum3_A10_CY}}"},
	}
	for _, tc := range cases {
		ref, ok, rejected := Classify(tc.key)
		require.True(t, ok, tc.key)
		require.False(t, rejected, tc.key)
		require.Equal(t, tc.kind, ref.Kind, tc.key)
		require.Equal(t, tc.form, ref.Form, tc.key)
		require.Equal(t, tc.account, ref.Account, tc.key)
		require.Equal(t, tc.canonical, ref.Canonical(), tc.key)
	}
}

func TestClassifyRejectsBadLevels(t *testing.T) {
	for _, key := range []string{"Sum6_ABCDEF_CY", "Sum3_AB_CY", "Sum0_A_CY", "CreditSum2_ABC_PY"} {
		_, ok, rejected := Classify(key)
		require.False(t, ok, key)
		require.True(t, rejected, key)
	}
	req := ParseKeys([]string{"{{Sum3_AB_CY}}", "{{Sum2_AB_CY}}"})
	require.Equal(t, []string{"{{Sum3_AB_CY}}"}, req.Rejected)
	require.Contains(t, req.Prefixes[2], "AB")
}

func TestClassifyIgnoresNonAlphanumericLead(t *testing.T) {
	_, ok, rejected := Classify("{{_x}}")
	require.False(t, ok)
	require.False(t, rejected)
}

func TestParseKeysOrderIndependent(t *testing.T) {
	keys := []string{"{{Sum3_A10_CY}}", "{{A999_CY}}", "{{B539_debit_CY}}", "{{Sum1_B_PY}}"}
	reversed := []string{keys[3], keys[2], keys[1], keys[0]}
	require.Equal(t, ParseKeys(keys), ParseKeys(reversed))
}
