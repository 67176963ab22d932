package query_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/query"
	"github.com/tbxark/talkform/types"
)

type fixture struct {
	db     *sql.DB
	tr     *query.Translations
	loader *query.Loader
	exec   *query.SQLExecutor
	cat    *catalog.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := query.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	tr, err := query.DefaultTranslations()
	require.NoError(t, err)
	cat, err := catalog.Default()
	require.NoError(t, err)
	return &fixture{db: db, tr: tr, loader: query.NewLoader(db, tr), exec: query.NewSQLExecutor(db, tr), cat: cat}
}

func (f *fixture) form(t *testing.T, name string) *form.Spec {
	t.Helper()
	spec, ok := f.cat.Form(name)
	require.True(t, ok, "form %s", name)
	return spec
}

func slotsOf(kv ...string) types.Slots {
	s := types.Slots{}
	for i := 0; i+1 < len(kv); i += 2 {
		s[kv[i]] = types.Value(kv[i+1])
	}
	return s
}

func (f *fixture) seedSearches(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.loader.AddSearches(ctx,
		query.SearchRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2025, Month: "Marzo", Day: "2025-03-01", Searches: 100},
		query.SearchRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2025, Month: "Marzo", Day: "2025-03-02", Searches: 50},
		query.SearchRow{Destination: "Valencia", Country: "France", City: "Lyon", Year: 2025, Month: "Marzo", Day: "2025-03-01", Searches: 30},
		query.SearchRow{Destination: "Valencia", Country: "Germany", City: "Berlin", Year: 2025, Month: "Marzo", Day: "2025-03-01", Searches: 10},
		query.SearchRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2024, Month: "Marzo", Day: "2024-03-01", Searches: 999},
	))
	require.NoError(t, f.loader.AddWindows(ctx,
		query.WindowRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2025, Month: "Marzo", WindowDays: 50},
		query.WindowRow{Destination: "Valencia", Country: "France", City: "Lyon", Year: 2025, Month: "Marzo", WindowDays: 30},
		query.WindowRow{Destination: "Valencia", Country: "Germany", City: "Berlin", Year: 2025, Month: "Marzo", WindowDays: 60},
	))
}

func searchSlots(kind, country, city string) types.Slots {
	return slotsOf(
		"tipo_consulta", kind,
		"destino_b", "Valencia",
		"origen_pais_b", country,
		"origen_ciudad_b", city,
		"anno_b", "2025",
		"date_filter", "Marzo",
		"consulta", kind,
	)
}

func TestSearchesFromMarket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedSearches(t)

	kind := "Ventana media y búsquedas desde un mercado de origen"
	res, err := f.exec.Execute(context.Background(), f.form(t, "busquedas"), searchSlots(kind, "Francia", "Todas"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"La ventana media y el número de búsquedas totales desde Francia a Valencia en marzo de 2025 son: **40 días** y **180 búsquedas**.",
		"_⇨ Se esperan 180 búsquedas en marzo para volar en abril_",
	}, res.Messages)
}

func TestSearchesFromCity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedSearches(t)

	kind := "Ventana media y búsquedas desde una ciudad de origen"
	slots := searchSlots(kind, "Francia", "Lyon")
	slots["date_filter"] = types.Value("Todos los meses")
	res, err := f.exec.Execute(context.Background(), f.form(t, "busquedas"), slots)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"La ventana media y el número de búsquedas totales desde Lyon (Francia) a Valencia en todos los meses de 2025 son: **30 días** y **30 búsquedas**.",
	}, res.Messages)
}

func TestDailySearches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedSearches(t)

	kind := "Búsquedas diarias desde un mercado de origen"
	res, err := f.exec.Execute(context.Background(), f.form(t, "busquedas"), searchSlots(kind, "Francia", "Todas"))
	require.NoError(t, err)
	assert.Equal(t, []string{"El número de búsquedas diarias promedio desde Francia a Valencia en marzo de 2025 es 90."}, res.Messages)
}

func TestMarketRanking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedSearches(t)

	kind := "Ranking de mercados de origen por ventana media"
	res, err := f.exec.Execute(context.Background(), f.form(t, "busquedas"), searchSlots(kind, "Todos", "Todas"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	msg := res.Messages[0]
	assert.True(t, strings.HasPrefix(msg, "El ranking de mercados de origen según la ventana promedio a Valencia en marzo de 2025 es:\n\n"), msg)
	de, fr := strings.Index(msg, "Alemania"), strings.Index(msg, "Francia")
	require.True(t, de > 0 && fr > 0, msg)
	assert.Less(t, de, fr, "longer window ranks first")
	assert.Contains(t, msg, "180")
}

func TestCityRankingTranslatesNames(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedSearches(t)

	kind := "Ranking de ciudades de origen por ventana media diarias"
	res, err := f.exec.Execute(context.Background(), f.form(t, "busquedas"), searchSlots(kind, "Francia", "Todas"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	msg := res.Messages[0]
	assert.Contains(t, msg, "Paris")
	assert.NotContains(t, msg, "Berlin")
	assert.Less(t, strings.Index(msg, "Paris"), strings.Index(msg, "Lyon"))
}

func TestSearchFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kind := "Ventana media y búsquedas desde un mercado de origen"

	empty := newFixture(t)
	_, err := empty.exec.Execute(ctx, empty.form(t, "busquedas"), searchSlots(kind, "Francia", "Todas"))
	assert.ErrorIs(t, err, query.ErrNoData)
	assert.Equal(t, query.NoDataMessage, query.Message(err))

	f := newFixture(t)
	f.seedSearches(t)
	slots := searchSlots(kind, "Francia", "Todas")
	delete(slots, "consulta")
	_, err = f.exec.Execute(ctx, f.form(t, "busquedas"), slots)
	assert.ErrorIs(t, err, query.ErrMissingInfo)
	assert.Equal(t, query.MissingInfoMessage, query.Message(err))

	slots = searchSlots(kind, "Francia", "Todas")
	slots["destino_b"] = types.Value("Alicante")
	res, err := f.exec.Execute(ctx, f.form(t, "busquedas"), slots)
	require.NoError(t, err)
	assert.Equal(t, []string{query.NoRowsMessage}, res.Messages)

	slots = searchSlots("Consulta desconocida", "Francia", "Todas")
	_, err = f.exec.Execute(ctx, f.form(t, "busquedas"), slots)
	assert.ErrorIs(t, err, query.ErrUnsupported)
	assert.Equal(t, query.FailedMessage, query.Message(err))
}

func TestOpportunityWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedSearches(t)
	ctx := context.Background()
	require.NoError(t, f.loader.AddWindows(ctx,
		query.WindowRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2024, Month: "Abril", WindowDays: 10},
	))

	kind := "Ventana de oportunidad desde un mercado de origen"
	slots := slotsOf(
		"tipo_consulta_v", kind,
		"destino_v", "Valencia",
		"origen_pais_v", "Francia",
		"origen_ciudad_v", "Todas",
		"date_filter_v", "Todos los meses",
		"consulta_v", kind,
	)
	res, err := f.exec.Execute(ctx, f.form(t, "ventana"), slots)
	require.NoError(t, err)
	assert.Equal(t, []string{"La ventana de oportunidad promedio desde Francia a Valencia en todos los meses de 2024 es 30."}, res.Messages)
}

func TestUnknownForm(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	assert.False(t, query.Supports("lead_time"))
	assert.True(t, query.Supports("clima"))
	_, err := f.exec.Execute(context.Background(), f.form(t, "lead_time"), types.Slots{})
	assert.ErrorIs(t, err, query.ErrUnsupported)
}

func clusterSlots(kind, window, profile string) types.Slots {
	return slotsOf(
		"tipo_consulta_c", kind,
		"destino_c", "Valencia",
		"anno_c", "2024",
		"date_filter_c", "Marzo",
		"rango_ventana", window,
		"perfil", profile,
	)
}

func TestClusterCities(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.loader.AddClusters(ctx,
		query.ClusterRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2024, Month: "Marzo", Profile: 0, WindowDays: 20},
		query.ClusterRow{Destination: "Valencia", Country: "France", City: "Lyon", Year: 2024, Month: "Marzo", Profile: 0, WindowDays: 25},
		query.ClusterRow{Destination: "Valencia", Country: "Germany", City: "Augsburg", Year: 2024, Month: "Marzo", Profile: 0, WindowDays: 18},
		query.ClusterRow{Destination: "Valencia", Country: "Germany", City: "Berlin", Year: 2024, Month: "Marzo", Profile: 1, WindowDays: 18},
	))
	spec := f.form(t, "cluster")

	res, err := f.exec.Execute(ctx, spec, clusterSlots("Número y lista de ciudades", "16-30", "Azul"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Estas son las ciudades de origen con **comportamientos comunes**, agrupadas por país: \n\n" +
			"**Alemania**  \nAugsburgo  \n**Francia**  \nLyon, París  \n",
	}, res.Messages)

	res, err = f.exec.Execute(ctx, spec, clusterSlots("Número y lista de ciudades", "31-60", "Todos los perfiles"))
	require.NoError(t, err)
	assert.Equal(t, []string{query.NoClusterMessage}, res.Messages)

	res, err = f.exec.Execute(ctx, spec, clusterSlots("Ranking de mercados por nº de ciudades", "16-30", "Todos los perfiles"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "Nº CIUDADES")
	assert.Contains(t, res.Messages[0], "Alemania")

	slots := clusterSlots("Número y lista de ciudades", "16-30", "Azul")
	delete(slots, "perfil")
	_, err = f.exec.Execute(ctx, spec, slots)
	assert.ErrorIs(t, err, query.ErrMissingInfo)
}

func TestClusterCityCards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	var rows []query.ClusterRow
	for i := range 12 {
		rows = append(rows, query.ClusterRow{
			Destination: "Valencia", Country: "France", City: fmt.Sprintf("ville %02d", i),
			Year: 2024, Month: "Marzo", Profile: 2, WindowDays: 5,
		})
	}
	require.NoError(t, f.loader.AddClusters(ctx, rows...))

	res, err := f.exec.Execute(ctx, f.form(t, "cluster"), clusterSlots("Número y lista de ciudades", "1-10", "Verde"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Contains(t, res.Messages[0], "Hay **12 ciudades**")
	cards := strings.Split(res.Messages[1], "\n\n")
	require.Len(t, cards, 2)
	assert.True(t, strings.HasPrefix(cards[0], "**FRANCIA**\n▫️ Ville 00"), cards[0])
	assert.Equal(t, 6, strings.Count(cards[1], "▫️"))
}

func climateSlots(climate string) types.Slots {
	return slotsOf(
		"tipo_consulta_cl", "Total de búsquedas según clima por origen",
		"destino_cl", "Valencia",
		"origen_pais_cl", "Francia",
		"origen_ciudad_cl", "Todas",
		"date_filter_cl", "Marzo",
		"clima_cl", climate,
	)
}

func TestClimate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.loader.AddClimate(ctx,
		query.ClimateRow{Destination: "Valencia", Country: "France", City: "Paris", Year: 2024, Month: "Marzo", Cold: 1000, Mild: 2500, Warm: 1234000},
		query.ClimateRow{Destination: "Valencia", Country: "France", City: "Lyon", Year: 2024, Month: "Marzo", Cold: 0, Mild: 0, Warm: 567},
	))
	spec := f.form(t, "clima")

	res, err := f.exec.Execute(ctx, spec, climateSlots("Clima cálido"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"El **total de búsquedas** con clima cálido para los parámetros seleccionados es de **1\u00a0234\u00a0567.**",
	}, res.Messages)

	res, err = f.exec.Execute(ctx, spec, climateSlots("Todos los climas"))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.True(t, strings.HasPrefix(res.Messages[0], "**Total de búsquedas** según clima para los parámetros seleccionados: \n\n"))
	assert.Contains(t, res.Messages[0], "CLIMA FRÍO")
	assert.Contains(t, res.Messages[0], "2\u00a0500")

	slots := climateSlots("Clima frío")
	slots["destino_cl"] = types.Value("Alicante")
	res, err = f.exec.Execute(ctx, spec, slots)
	require.NoError(t, err)
	assert.Equal(t, []string{query.NoClimateMessage}, res.Messages)
}

func TestMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, query.FailedMessage, query.Message(errors.New("boom")))
	assert.Equal(t, query.NoDataMessage, query.Message(fmt.Errorf("wrap: %w", query.ErrNoData)))
}
