package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

const (
	allDestinations = "todos"
	allCountries    = "todos"
	allCities       = "todas"
	allMonths       = "todos los meses"
	allProfiles     = "Todos los perfiles"
	allClimates     = "Todos los climas"

	cityRankingLimit = 15
)

// params are the slot values of one query, raw and normalized for the report data.
type params struct {
	kind string

	destination string
	country     string
	city        string
	year        string
	month       string
	query       string
	window      string
	profile     string
	climate     string

	dataDestination string
	dataCountry     string
	dataCity        string
	dataMonth       string
}

func (p *params) prettyDestination() string {
	if p.dataDestination == allDestinations {
		return "Comunitat Valenciana"
	}
	return p.destination
}

func (p *params) prettyCountry() string {
	if p.dataCountry == allCountries {
		return "todos los mercados"
	}
	return p.country
}

func (p *params) prettyCity() string {
	if p.dataCity == allCities {
		return "todas las ciudades"
	}
	return p.city
}

func (p *params) prettyMonth() string {
	if p.dataMonth == "" {
		return allMonths
	}
	return p.dataMonth
}

// SQLExecutor answers the analysis forms from the report tables.
type SQLExecutor struct {
	db *sql.DB
	tr *Translations
}

func NewSQLExecutor(db *sql.DB, tr *Translations) *SQLExecutor {
	return &SQLExecutor{db: db, tr: tr}
}

func (e *SQLExecutor) Execute(ctx context.Context, spec *form.Spec, slots types.Slots) (*Result, error) {
	r, ok := formRoles[spec.Name]
	if !ok {
		return nil, fmt.Errorf("%w: form %q", ErrUnsupported, spec.Name)
	}
	p := e.params(spec, slots, r)
	slog.Debug("Executing query", "form", spec.Name, "kind", p.kind, "destination", p.dataDestination,
		"country", p.dataCountry, "city", p.dataCity, "year", p.year, "month", p.dataMonth)

	switch spec.Name {
	case "busquedas":
		return e.searches(ctx, p)
	case "ventana":
		return e.window(ctx, p)
	case "cluster":
		return e.clusters(ctx, p)
	default:
		return e.climate(ctx, p)
	}
}

func (e *SQLExecutor) params(spec *form.Spec, slots types.Slots, r roles) *params {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return strings.TrimSpace(slots.String(name))
	}
	p := &params{
		kind:        get(r.Selector),
		destination: get(r.Destination),
		country:     get(r.Country),
		city:        get(r.City),
		month:       get(r.Month),
		query:       get(r.Query),
		window:      get(r.Range),
		profile:     get(r.Profile),
		climate:     get(r.Climate),
		year:        spec.YearFor(slots),
	}
	if r.Year != "" {
		p.year = get(r.Year)
	}
	p.dataDestination = e.tr.Destination(p.destination)
	p.dataCountry = Normalize(p.country)
	p.dataCity = Normalize(e.tr.CityToData(p.city))
	if m := Normalize(p.month); m != allMonths {
		p.dataMonth = m
	}
	return p
}

func missing(values ...string) error {
	for _, v := range values {
		if v == "" {
			return ErrMissingInfo
		}
	}
	return nil
}

// filter collects SQL conditions and their arguments.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, args ...any) {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, args...)
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// placeFilter filters on destination, origin, month and, when withYear, year. "Todos",
// "Todas" and "Todos los meses" leave their column unfiltered.
func (p *params) placeFilter(withYear bool) *filter {
	f := &filter{}
	if p.dataDestination != "" && p.dataDestination != allDestinations {
		f.add("destination_city = ?", p.dataDestination)
	}
	if p.dataCountry != "" && p.dataCountry != allCountries {
		f.add("origin_country = ?", p.dataCountry)
	}
	if p.dataCity != "" && p.dataCity != allCities {
		f.add("origin_city = ?", p.dataCity)
	}
	if withYear && p.year != "" {
		if y, err := strconv.Atoi(p.year); err == nil {
			f.add("year = ?", y)
		}
	}
	if p.dataMonth != "" {
		f.add("month = ?", p.dataMonth)
	}
	return f
}

func (e *SQLExecutor) count(ctx context.Context, table string, f *filter) (int, error) {
	var n int
	err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+f.where(), f.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (e *SQLExecutor) requireData(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		n, err := e.count(ctx, table, &filter{})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNoData, table)
		}
	}
	return nil
}

func (e *SQLExecutor) scalar(ctx context.Context, query string, args ...any) (float64, error) {
	var v sql.NullFloat64
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, err
	}
	return v.Float64, nil
}

// rankRow is a named row of numeric columns.
type rankRow struct {
	name   string
	values []float64
}

func (e *SQLExecutor) rank(ctx context.Context, columns int, query string, args ...any) ([]rankRow, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rankRow
	for rows.Next() {
		r := rankRow{values: make([]float64, columns)}
		nulls := make([]sql.NullFloat64, columns)
		dest := []any{&r.name}
		for i := range nulls {
			dest = append(dest, &nulls[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, n := range nulls {
			r.values[i] = n.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func round(v float64) int64 {
	return int64(math.Round(v))
}

func (e *SQLExecutor) rankingTable(rows []rankRow, header []string, cities bool) string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		name := r.name
		if cities {
			name = e.tr.CityFromData(name)
		}
		row := []string{Title(name)}
		for _, v := range r.values {
			row = append(row, strconv.FormatInt(round(v), 10))
		}
		cells = append(cells, row)
	}
	return markdownTable(header, cells)
}

func groupColumn(kind string) (string, bool) {
	if strings.Contains(strings.ToLower(kind), "ciudades") {
		return "origin_city", true
	}
	return "origin_country", false
}

func rankLimit(cities bool) int {
	if cities {
		return cityRankingLimit
	}
	return -1
}

func (e *SQLExecutor) searches(ctx context.Context, p *params) (*Result, error) {
	if err := e.requireData(ctx, "searches", "opportunity_window"); err != nil {
		return nil, err
	}
	if err := missing(p.dataDestination, p.dataCountry, p.dataCity, p.query); err != nil {
		return nil, err
	}
	fs, fw := p.placeFilter(true), p.placeFilter(true)
	ns, err := e.count(ctx, "searches", fs)
	if err != nil {
		return nil, err
	}
	nw, err := e.count(ctx, "opportunity_window", fw)
	if err != nil {
		return nil, err
	}
	if ns == 0 || nw == 0 {
		return &Result{Messages: []string{NoRowsMessage}}, nil
	}

	dest, month := p.prettyDestination(), p.prettyMonth()
	switch p.kind {
	case "Ventana media y búsquedas desde un mercado de origen", "Ventana media y búsquedas desde una ciudad de origen":
		total, err := e.scalar(ctx, "SELECT SUM(searches) FROM searches"+fs.where(), fs.args...)
		if err != nil {
			return nil, err
		}
		avg, err := e.scalar(ctx, "SELECT AVG(window_days) FROM opportunity_window"+fw.where(), fw.args...)
		if err != nil {
			return nil, err
		}
		origin := p.prettyCountry()
		if strings.Contains(p.kind, "ciudad") {
			origin = fmt.Sprintf("%s (%s)", p.prettyCity(), p.prettyCountry())
		}
		days, n := round(avg), round(total)
		msgs := []string{fmt.Sprintf(
			"La ventana media y el número de búsquedas totales desde %s a %s en %s de %s son: **%d días** y **%d búsquedas**.",
			origin, dest, month, p.year, days, n)}
		if p.dataMonth != "" {
			year, _ := strconv.Atoi(p.year)
			flight, err := e.tr.MonthAfterDays(p.dataMonth, int(days), year)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, fmt.Sprintf("_⇨ Se esperan %d búsquedas en %s para volar en %s_", n, month, flight))
		}
		return &Result{Messages: msgs}, nil

	case "Ranking de mercados de origen por ventana media", "Ranking de ciudades de origen por ventana media":
		col, cities := groupColumn(p.kind)
		query := fmt.Sprintf(`SELECT w.name, w.days, s.total FROM
			(SELECT %[1]s AS name, ROUND(AVG(window_days)) AS days FROM opportunity_window%[2]s GROUP BY %[1]s) w
			JOIN (SELECT %[1]s AS name, ROUND(SUM(searches)) AS total FROM searches%[3]s GROUP BY %[1]s) s ON s.name = w.name
			ORDER BY w.days DESC, w.name LIMIT ?`, col, fw.where(), fs.where())
		args := append(append(append([]any{}, fw.args...), fs.args...), rankLimit(cities))
		rows, err := e.rank(ctx, 2, query, args...)
		if err != nil {
			return nil, err
		}
		table := e.rankingTable(rows, []string{"Origen", "Ventana media", "Búsq. totales"}, cities)
		if cities {
			return single("El ranking ciudades de origen de %s según la ventana promedio a %s en %s de %s es:\n\n%s",
				p.prettyCountry(), dest, month, p.year, table), nil
		}
		return single("El ranking de mercados de origen según la ventana promedio a %s en %s de %s es:\n\n%s",
			dest, month, p.year, table), nil

	case "Búsquedas diarias desde un mercado de origen", "Búsquedas diarias desde una ciudad de origen":
		daily, err := e.scalar(ctx, "SELECT AVG(total) FROM (SELECT SUM(searches) AS total FROM searches"+fs.where()+" GROUP BY search_day)", fs.args...)
		if err != nil {
			return nil, err
		}
		origin := p.prettyCountry()
		if strings.Contains(p.kind, "ciudad") {
			origin = p.prettyCity()
		}
		return single("El número de búsquedas diarias promedio desde %s a %s en %s de %s es %d.",
			origin, dest, month, p.year, round(daily)), nil

	case "Ranking de mercados de origen por ventana media diarias", "Ranking de ciudades de origen por ventana media diarias":
		col, cities := groupColumn(p.kind)
		query := fmt.Sprintf(`SELECT name, ROUND(AVG(total)) AS daily FROM
			(SELECT search_day, %[1]s AS name, SUM(searches) AS total FROM searches%[2]s GROUP BY search_day, %[1]s)
			GROUP BY name ORDER BY daily DESC, name LIMIT ?`, col, fs.where())
		rows, err := e.rank(ctx, 1, query, append(append([]any{}, fs.args...), rankLimit(cities))...)
		if err != nil {
			return nil, err
		}
		table := e.rankingTable(rows, []string{"Origen", "Búsquedas al día"}, cities)
		if cities {
			return single("El ranking ciudades de origen de %s según las búsquedas al día promedio a %s en %s de %s es:\n\n%s",
				p.prettyCountry(), dest, month, p.year, table), nil
		}
		return single("El ranking de mercados de origen según las búsquedas al día promedio a %s en %s de %s es:\n\n%s",
			dest, month, p.year, table), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, p.kind)
}

func (e *SQLExecutor) window(ctx context.Context, p *params) (*Result, error) {
	if err := e.requireData(ctx, "opportunity_window"); err != nil {
		return nil, err
	}
	if err := missing(p.dataDestination, p.dataCountry, p.dataCity, p.query); err != nil {
		return nil, err
	}
	f := p.placeFilter(false)
	n, err := e.count(ctx, "opportunity_window", f)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Result{Messages: []string{NoRowsMessage}}, nil
	}

	dest, month := p.prettyDestination(), p.prettyMonth()
	switch p.kind {
	case "Ventana de oportunidad desde un mercado de origen", "Ventana de oportunidad desde una ciudad de origen":
		avg, err := e.scalar(ctx, "SELECT AVG(window_days) FROM opportunity_window"+f.where(), f.args...)
		if err != nil {
			return nil, err
		}
		origin := p.prettyCountry()
		if strings.Contains(p.kind, "ciudad") {
			origin = p.prettyCity()
		}
		return single("La ventana de oportunidad promedio desde %s a %s en %s de %s es %d.",
			origin, dest, month, p.year, round(avg)), nil

	case "Ranking de mercados de origen por ventana de oportunidad", "Ranking de ciudades de origen por ventana de oportunidad":
		col, cities := groupColumn(p.kind)
		query := fmt.Sprintf(`SELECT name, ROUND(AVG(days)) AS days FROM
			(SELECT month, %[1]s AS name, AVG(window_days) AS days FROM opportunity_window%[2]s GROUP BY month, %[1]s)
			GROUP BY name ORDER BY days DESC, name LIMIT ?`, col, f.where())
		rows, err := e.rank(ctx, 1, query, append(append([]any{}, f.args...), rankLimit(cities))...)
		if err != nil {
			return nil, err
		}
		table := e.rankingTable(rows, []string{"Origen", "Ventana"}, cities)
		if cities {
			return single("El ranking ciudades de origen de %s según la ventana de oportunidad promedio a %s en %s de %s es:\n\n%s",
				p.prettyCountry(), dest, month, p.year, table), nil
		}
		return single("El ranking de mercados de origen según la ventana de oportunidad promedio a %s en %s de %s es:\n\n%s",
			dest, month, p.year, table), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, p.kind)
}

func (e *SQLExecutor) clusters(ctx context.Context, p *params) (*Result, error) {
	if err := e.requireData(ctx, "clusters"); err != nil {
		return nil, err
	}
	if err := missing(p.dataDestination, p.year, p.month, p.window, p.profile); err != nil {
		return nil, err
	}
	f := p.placeFilter(true)
	if p.profile != allProfiles {
		if key, ok := e.tr.Profiles[p.profile]; ok {
			f.add("profile = ?", key)
		}
	}
	lo, hi, err := form.ParseRange(p.window)
	if err != nil {
		return nil, err
	}
	f.add("window_days BETWEEN ? AND ?", lo, hi)

	n, err := e.count(ctx, "clusters", f)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Result{Messages: []string{NoClusterMessage}}, nil
	}

	switch p.kind {
	case "Número y lista de ciudades":
		return e.clusterCities(ctx, f)
	case "Ranking de mercados por nº de ciudades":
		rows, err := e.rank(ctx, 1, `SELECT origin_country, COUNT(DISTINCT origin_city) AS cities FROM clusters`+f.where()+
			` GROUP BY origin_country ORDER BY cities DESC, origin_country`, f.args...)
		if err != nil {
			return nil, err
		}
		return &Result{Messages: []string{e.rankingTable(rows, []string{"PAÍS", "Nº CIUDADES"}, false)}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, p.kind)
}

func (e *SQLExecutor) clusterCities(ctx context.Context, f *filter) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT DISTINCT origin_country, origin_city FROM clusters`+f.where()+
		` ORDER BY origin_country, origin_city`, f.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []string
	byCountry := map[string][]string{}
	for rows.Next() {
		var country, city string
		if err := rows.Scan(&country, &city); err != nil {
			return nil, err
		}
		if _, ok := byCountry[country]; !ok {
			countries = append(countries, country)
		}
		byCountry[country] = append(byCountry[country], e.tr.ClusterCity(city))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, cities := range byCountry {
		total += len(cities)
	}
	var b strings.Builder
	if total < 10 {
		b.WriteString("Estas son las ciudades de origen con **comportamientos comunes**, agrupadas por país: \n\n")
		for _, country := range countries {
			fmt.Fprintf(&b, "**%s**  \n%s  \n", Title(country), strings.Join(byCountry[country], ", "))
		}
		return &Result{Messages: []string{b.String()}}, nil
	}

	const chunk = 6
	var cards []string
	for _, country := range countries {
		cities := byCountry[country]
		for i := 0; i < len(cities); i += chunk {
			lines := make([]string, 0, chunk+1)
			if i == 0 {
				lines = append(lines, "**"+strings.ToUpper(country)+"**")
			}
			for _, c := range cities[i:min(i+chunk, len(cities))] {
				lines = append(lines, "▫️ "+c)
			}
			cards = append(cards, strings.Join(lines, "\n"))
		}
	}
	return &Result{Messages: []string{
		fmt.Sprintf("☝️💡 Hay **%d ciudades** con un comportamiento similar en las condiciones especificadas. Aquí están agrupadas por país:", total),
		strings.Join(cards, "\n\n"),
	}}, nil
}

func (e *SQLExecutor) climate(ctx context.Context, p *params) (*Result, error) {
	if err := e.requireData(ctx, "climate_searches"); err != nil {
		return nil, err
	}
	if err := missing(p.dataDestination, p.dataCountry, p.dataCity, p.month, p.climate); err != nil {
		return nil, err
	}
	f := p.placeFilter(false)
	n, err := e.count(ctx, "climate_searches", f)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Result{Messages: []string{NoClimateMessage}}, nil
	}
	if p.kind != "Total de búsquedas según clima por origen" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, p.kind)
	}

	rows, err := e.rank(ctx, 3, `SELECT 'total', SUM(searches_cold), SUM(searches_mild), SUM(searches_warm) FROM climate_searches`+f.where(), f.args...)
	if err != nil {
		return nil, err
	}
	sums := rows[0].values
	column := map[string]int{"Clima frío": 0, "Clima medio": 1, "Clima cálido": 2}
	if p.climate != allClimates {
		i, ok := column[p.climate]
		if !ok {
			return single("No se encontró información al respecto en la base de datos."), nil
		}
		return single("El **total de búsquedas** con %s para los parámetros seleccionados es de **%s.**",
			strings.ToLower(p.climate), FormatNumber(round(sums[i]))), nil
	}
	table := markdownTable([]string{"CLIMA FRÍO", "CLIMA MEDIO", "CLIMA CÁLIDO"}, [][]string{{
		FormatNumber(round(sums[0])), FormatNumber(round(sums[1])), FormatNumber(round(sums[2])),
	}})
	return single("**Total de búsquedas** según clima para los parámetros seleccionados: \n\n%s", table), nil
}

func single(format string, args ...any) *Result {
	return &Result{Messages: []string{fmt.Sprintf(format, args...)}}
}
