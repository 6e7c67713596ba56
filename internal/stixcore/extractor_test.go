package stixcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBundle(t *testing.T) {
	t.Run("Valid bundle", func(t *testing.T) {
		b, err := DecodeBundle([]byte(`{"type": "bundle", "objects": []}`))
		require.NoError(t, err)
		assert.Equal(t, "bundle", b.Type)
	})

	t.Run("Non-bundle object is rejected", func(t *testing.T) {
		_, err := DecodeBundle([]byte(`{"type": "indicator", "pattern": "[ipv4-addr:value = '1.2.3.4']"}`))
		assert.ErrorIs(t, err, ErrInvalidBundle)
	})

	t.Run("Non-object input is rejected", func(t *testing.T) {
		_, err := DecodeBundle([]byte(`["not", "a", "bundle"]`))
		assert.ErrorIs(t, err, ErrInvalidBundle)
	})

	t.Run("Broken JSON is a decode error, not InvalidBundle", func(t *testing.T) {
		_, err := DecodeBundle([]byte(`{"type": "bundle",`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidBundle)
	})

	t.Run("Wrong-typed field in one object does not reject the bundle", func(t *testing.T) {
		b, err := DecodeBundle([]byte(`{
			"type": "bundle",
			"objects": [
				{"type": "attack-pattern", "id": "attack-pattern--bad", "name": 123},
				{
					"type": "attack-pattern",
					"id": "attack-pattern--good",
					"name": "PowerShell",
					"external_references": [
						{"source_name": "mitre-attack", "external_id": "T1059.001"}
					],
					"kill_chain_phases": [
						{"kill_chain_name": "mitre-attack", "phase_name": "execution"}
					]
				}
			]
		}`))
		require.NoError(t, err)

		patterns, err := ExtractAttackPatterns(b)
		require.NoError(t, err)
		require.Len(t, patterns, 2)
		// The malformed pattern degrades to empty fields, the well-formed
		// one keeps its full derivation.
		assert.Empty(t, patterns[0].Object.Name)
		assert.Equal(t, "T1059.001", patterns[1].TechniqueID)
		assert.Equal(t, []string{"execution"}, patterns[1].Tactics)
	})

	t.Run("Non-object entries in objects are skipped", func(t *testing.T) {
		b, err := DecodeBundle([]byte(`{
			"type": "bundle",
			"objects": [
				"not an object",
				{"type": "attack-pattern", "id": "attack-pattern--1", "name": "PowerShell"}
			]
		}`))
		require.NoError(t, err)

		patterns, err := ExtractAttackPatterns(b)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, "attack-pattern--1", patterns[0].Object.ID)
	})

	t.Run("Wrong-typed objects field degrades to an empty bundle", func(t *testing.T) {
		b, err := DecodeBundle([]byte(`{"type": "bundle", "objects": "nope"}`))
		require.NoError(t, err)

		patterns, err := ExtractAttackPatterns(b)
		require.NoError(t, err)
		assert.Empty(t, patterns)
	})
}

func TestExtractAttackPatterns(t *testing.T) {
	t.Run("Nil bundle is rejected", func(t *testing.T) {
		_, err := ExtractAttackPatterns(nil)
		assert.ErrorIs(t, err, ErrInvalidBundle)
	})

	t.Run("Empty bundle yields empty result, not an error", func(t *testing.T) {
		patterns, err := ExtractAttackPatterns(&Bundle{Type: "bundle"})
		require.NoError(t, err)
		assert.Empty(t, patterns)
	})

	t.Run("Non attack-pattern objects are skipped", func(t *testing.T) {
		b := &Bundle{Type: "bundle", Objects: []StixObject{
			{Type: "indicator", ID: "indicator--1"},
			{Type: "attack-pattern", ID: "attack-pattern--1", Name: "Process Injection"},
			{Type: "relationship", ID: "relationship--1"},
		}}
		patterns, err := ExtractAttackPatterns(b)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, "attack-pattern--1", patterns[0].Object.ID)
	})

	t.Run("Input order is preserved", func(t *testing.T) {
		b := &Bundle{Type: "bundle", Objects: []StixObject{
			{Type: "attack-pattern", ID: "attack-pattern--2"},
			{Type: "attack-pattern", ID: "attack-pattern--1"},
		}}
		patterns, err := ExtractAttackPatterns(b)
		require.NoError(t, err)
		require.Len(t, patterns, 2)
		assert.Equal(t, "attack-pattern--2", patterns[0].Object.ID)
		assert.Equal(t, "attack-pattern--1", patterns[1].Object.ID)
	})
}

func TestDeriveTechniqueID(t *testing.T) {
	tests := []struct {
		name string
		refs []ExternalReference
		want string
	}{
		{
			name: "Canonical external_id",
			refs: []ExternalReference{{SourceName: "mitre-attack", ExternalID: "T1055.011"}},
			want: "T1055.011",
		},
		{
			name: "Lower-case external_id is normalized",
			refs: []ExternalReference{{SourceName: "mitre-attack", ExternalID: "t1055.011"}},
			want: "T1055.011",
		},
		{
			name: "Case-insensitive source_name",
			refs: []ExternalReference{{SourceName: "MITRE-ATTACK", ExternalID: "T1059"}},
			want: "T1059",
		},
		{
			name: "Sub-technique URL recovery",
			refs: []ExternalReference{{SourceName: "mitre-attack", URL: "https://attack.mitre.org/techniques/T1055/011"}},
			want: "T1055.011",
		},
		{
			name: "Parent technique URL recovery",
			refs: []ExternalReference{{SourceName: "mitre-attack", URL: "https://attack.mitre.org/techniques/T1566"}},
			want: "T1566",
		},
		{
			name: "Last-resort URL scan over non-mitre references",
			refs: []ExternalReference{
				{SourceName: "capec", ExternalID: "CAPEC-242"},
				{SourceName: "some-vendor", URL: "https://attack.mitre.org/techniques/T1059/001"},
			},
			want: "T1059.001",
		},
		{
			name: "external_id wins over URL",
			refs: []ExternalReference{{
				SourceName: "mitre-attack",
				ExternalID: "T1003",
				URL:        "https://attack.mitre.org/techniques/T9999",
			}},
			want: "T1003",
		},
		{
			name: "CAPEC IDs are ignored",
			refs: []ExternalReference{{SourceName: "capec", ExternalID: "CAPEC-242"}},
			want: "",
		},
		{
			name: "Malformed external_id yields nothing",
			refs: []ExternalReference{{SourceName: "mitre-attack", ExternalID: "T10555"}},
			want: "",
		},
		{
			name: "No references",
			refs: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTechniqueID(tt.refs))
		})
	}
}

func TestDeriveTactics(t *testing.T) {
	t.Run("Sorted and deduplicated", func(t *testing.T) {
		phases := []KillChainPhase{
			{KillChainName: "mitre-attack", PhaseName: "persistence"},
			{KillChainName: "mitre-attack", PhaseName: "defense-evasion"},
			{KillChainName: "mitre-attack", PhaseName: "persistence"},
		}
		assert.Equal(t, []string{"defense-evasion", "persistence"}, deriveTactics(phases))
	})

	t.Run("Other kill chains are ignored", func(t *testing.T) {
		phases := []KillChainPhase{
			{KillChainName: "lockheed-martin-cyber-kill-chain", PhaseName: "delivery"},
			{KillChainName: "MITRE-ATTACK", PhaseName: " Execution "},
		}
		assert.Equal(t, []string{"execution"}, deriveTactics(phases))
	})

	t.Run("Empty phase names are dropped", func(t *testing.T) {
		phases := []KillChainPhase{
			{KillChainName: "mitre-attack", PhaseName: "  "},
		}
		assert.Empty(t, deriveTactics(phases))
	})
}
