package sqlinline

const QSelectJobs = `--sql 689da14b-cac0-4a17-a81f-91522eda2d06
select id, status, progress, stage_label, input, result, error,
       created_at, updated_at, started_at
from jobs
order by created_at asc;
`

const QUpsertJob = `--sql 4e81a001-ce3c-4e22-841c-c400bddec228
insert into jobs (id, user_id, status, progress, stage_label, input, result, error,
                  created_at, updated_at, started_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
on conflict (id) do update set
    status = excluded.status,
    progress = excluded.progress,
    stage_label = excluded.stage_label,
    input = excluded.input,
    result = excluded.result,
    error = excluded.error,
    updated_at = excluded.updated_at,
    started_at = excluded.started_at;
`

const QDeleteJob = `--sql eefbfdb4-4bfe-432b-88fb-2ff59f083b8a
delete from jobs where id = $1;
`

const QDeleteJobsExcept = `--sql a79288f3-ea89-4c45-91ce-469666e44aec
delete from jobs where not (id = any($1::text[]));
`
