package ledger

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

func newTreasuryApp(t *testing.T) (*fiber.App, Ledger, *NFTRegistry) {
	t.Helper()
	l := NewInMemory()
	require.NoError(t, l.RegisterToken(context.Background(), Token{ID: "dai", Controllers: []string{"treasury"}}))
	require.NoError(t, l.RegisterToken(context.Background(), Token{ID: "ticket", Controllers: []string{"pool"}}))
	nfts := NewNFTRegistry()
	h := NewHandler(l, nfts, "treasury", "ticket", "sponsorship")

	app := fiber.New()
	app.Post("/mint", h.Mint)
	app.Post("/nfts", h.MintNFT)
	app.Get("/tokens/:token/balances/:holder", h.Balance)
	return app, l, nfts
}

func send(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func TestTreasuryMintsRegisteredAndNewTokens(t *testing.T) {
	app, l, _ := newTreasuryApp(t)
	ctx := context.Background()

	status, _ := send(t, app, fiber.MethodPost, "/mint", `{"token":"dai","to":"alice","amount":"100"}`)
	require.Equal(t, fiber.StatusCreated, status)
	bal, err := l.BalanceOf(ctx, "dai", "alice")
	require.NoError(t, err)
	require.Zero(t, fixedpoint.MustParseUnits("100").Cmp(bal))

	status, _ = send(t, app, fiber.MethodPost, "/mint", `{"token":"usdc","to":"pool","amount":"7"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := send(t, app, fiber.MethodGet, "/tokens/usdc/balances/pool", "")
	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `{"token":"usdc","holder":"pool","balance":"7"}`, body)
}

func TestTreasuryCannotMintPoolTokens(t *testing.T) {
	app, _, _ := newTreasuryApp(t)

	status, _ := send(t, app, fiber.MethodPost, "/mint", `{"token":"ticket","to":"alice","amount":"1"}`)
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = send(t, app, fiber.MethodPost, "/mint", `{"token":"sponsorship","to":"alice","amount":"1"}`)
	require.Equal(t, fiber.StatusNotFound, status)

	status, _ = send(t, app, fiber.MethodPost, "/mint", `{"token":"dai","to":"alice","amount":"-1"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestTreasuryMintsNFTOnce(t *testing.T) {
	app, _, nfts := newTreasuryApp(t)

	status, _ := send(t, app, fiber.MethodPost, "/nfts", `{"collection":"punks","id":"1","to":"pool"}`)
	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, "pool", nfts.OwnerOf("punks", "1"))

	status, _ = send(t, app, fiber.MethodPost, "/nfts", `{"collection":"punks","id":"1","to":"bob"}`)
	require.Equal(t, fiber.StatusConflict, status)
}
